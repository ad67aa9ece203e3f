package handles

import (
	"context"
	"testing"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
)

type fakeDerivative struct {
	mutateCalls        int
	mutateInPlaceCalls int
	noOpUpdate         bool
}

func (f *fakeDerivative) MutateInPlace(lhs, rhsExpr ast.Exp, opBody ast.Stm, abstractState []ast.EVar, assumptions, invariants []ast.Exp, subgoalsOut *[]*ast.Query) (ast.Stm, error) {
	f.mutateInPlaceCalls++
	if f.noOpUpdate {
		return ast.SNoOp{}, nil
	}
	return ast.SAssign{Lhs: lhs, Rhs: rhsExpr}, nil
}

func (f *fakeDerivative) Mutate(e ast.Exp, opBody ast.Stm) (ast.Exp, error) {
	f.mutateCalls++
	return ast.ELit{Value: 1, Typ: ast.TInt{}}, nil
}

type fakeHandleAnalyzer struct {
	reachable map[ast.Type]ast.Exp
}

func (f *fakeHandleAnalyzer) ReachableHandlesAtMethod(spec *ast.Specification, m *ast.Query) (map[ast.Type]ast.Exp, error) {
	return f.reachable, nil
}

func (f *fakeHandleAnalyzer) ImplicitHandleAssumptions(reachable map[ast.Type]ast.Exp) ([]ast.Exp, error) {
	return nil, nil
}

type fakeTarget struct {
	spec        *ast.Specification
	state       []ast.EVar
	invariants  []ast.Exp
	updates     map[string]ast.Stm
	subqueries  []*ast.Query
}

func (f *fakeTarget) Spec() *ast.Specification { return f.spec }
func (f *fakeTarget) AbstractState() []ast.EVar { return f.state }
func (f *fakeTarget) Invariants() []ast.Exp     { return f.invariants }

func (f *fakeTarget) SetHandleUpdate(t ast.Type, opName string, stm ast.Stm) {
	if f.updates == nil {
		f.updates = make(map[string]ast.Stm)
	}
	f.updates[t.Key()+"/"+opName] = stm
}

func (f *fakeTarget) IntroduceSubquery(ctx context.Context, subQ *ast.Query, usedBy ast.Stm, ctxVars *collab.RootCtx, extraAvailableState []ast.Exp) (ast.Stm, error) {
	f.subqueries = append(f.subqueries, subQ)
	return usedBy, nil
}

func handleType() ast.THandle {
	return ast.THandle{Name: "Node", ValueType: ast.TInt{}}
}

func TestPlanAllStoresForEachUpdateWhenValueChanges(t *testing.T) {
	ht := handleType()
	bagVar := ast.EVar{Name: "nodes", Typ: ast.TBag{Elem: ht}}
	op := &ast.Operation{Name: "bump", Args: nil, Assumptions: nil, Body: ast.SNoOp{}}
	spec := &ast.Specification{Operations: []*ast.Operation{op}}

	target := &fakeTarget{spec: spec}
	planner := &Planner{
		Derivative: &fakeDerivative{},
		Handles:    &fakeHandleAnalyzer{reachable: map[ast.Type]ast.Exp{ht: bagVar}},
		Target:     target,
	}

	if err := planner.PlanAll(context.Background()); err != nil {
		t.Fatalf("PlanAll: %v", err)
	}

	key := ht.Key() + "/bump"
	stm, ok := target.updates[key]
	if !ok {
		t.Fatalf("no update stored for key %q", key)
	}
	if _, isForEach := stm.(ast.SForEach); !isForEach {
		t.Errorf("expected SForEach, got %T", stm)
	}
	if len(target.subqueries) == 0 {
		t.Errorf("expected modified_handles to be routed through IntroduceSubquery")
	}
}

// TestModifiedHandlesCarriesOpAssumptionsAndTheirArgs covers the case
// where an operation's assumption references an argument that does not
// otherwise appear in modified_handles' return expression: that argument
// must still show up in modified_handles' own arg list, and the
// assumption itself must be attached to the helper query, mirroring
// _setup_handle_updates computing free_vars(modified_handles) after
// assumptions are attached.
func TestModifiedHandlesCarriesOpAssumptionsAndTheirArgs(t *testing.T) {
	ht := handleType()
	bagVar := ast.EVar{Name: "nodes", Typ: ast.TBag{Elem: ht}}
	k0 := ast.Arg{Name: "k0", Type: ast.TInt{}}
	assumption := ast.ECall{
		Func: "gt",
		Args: []ast.Exp{ast.EVar{Name: "k0", Typ: ast.TInt{}}, ast.ELit{Value: int64(0), Typ: ast.TInt{}}},
		Typ:  ast.TBool{},
	}
	op := &ast.Operation{Name: "bump", Args: []ast.Arg{k0}, Assumptions: []ast.Exp{assumption}, Body: ast.SNoOp{}}
	spec := &ast.Specification{Operations: []*ast.Operation{op}}

	target := &fakeTarget{spec: spec}
	planner := &Planner{
		Derivative: &fakeDerivative{},
		Handles:    &fakeHandleAnalyzer{reachable: map[ast.Type]ast.Exp{ht: bagVar}},
		Target:     target,
	}

	if err := planner.PlanAll(context.Background()); err != nil {
		t.Fatalf("PlanAll: %v", err)
	}

	if len(target.subqueries) == 0 {
		t.Fatalf("expected modified_handles to be routed through IntroduceSubquery")
	}
	modifiedHandles := target.subqueries[len(target.subqueries)-1]

	if len(modifiedHandles.Assumptions) != 1 || modifiedHandles.Assumptions[0].Key() != assumption.Key() {
		t.Fatalf("expected modified_handles.Assumptions to carry op.Assumptions, got %v", modifiedHandles.Assumptions)
	}
	foundK0 := false
	for _, a := range modifiedHandles.Args {
		if a.Name == "k0" {
			foundK0 = true
		}
	}
	if !foundK0 {
		t.Errorf("expected modified_handles.Args to include k0 (free in assumptions), got %v", modifiedHandles.Args)
	}
}

func TestPlanAllStoresNoOpWhenDerivativeReturnsNoOp(t *testing.T) {
	ht := handleType()
	bagVar := ast.EVar{Name: "nodes", Typ: ast.TBag{Elem: ht}}
	op := &ast.Operation{Name: "noop", Args: nil, Assumptions: nil, Body: ast.SNoOp{}}
	spec := &ast.Specification{Operations: []*ast.Operation{op}}

	target := &fakeTarget{spec: spec}
	planner := &Planner{
		Derivative: &fakeDerivative{noOpUpdate: true},
		Handles:    &fakeHandleAnalyzer{reachable: map[ast.Type]ast.Exp{ht: bagVar}},
		Target:     target,
	}

	if err := planner.PlanAll(context.Background()); err != nil {
		t.Fatalf("PlanAll: %v", err)
	}

	key := ht.Key() + "/noop"
	stm, ok := target.updates[key]
	if !ok {
		t.Fatalf("no update stored for key %q", key)
	}
	if _, isNoOp := stm.(ast.SNoOp); !isNoOp {
		t.Errorf("expected SNoOp when derivative produced no update, got %T", stm)
	}
}
