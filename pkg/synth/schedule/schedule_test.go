package schedule

import (
	"testing"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/maint"
)

type fakeTarget struct {
	spec       *ast.Specification
	specs      []*ast.Query
	impls      map[string]*ast.Query
	conc       []ast.CVarBinding
	updates    []maint.UpdateEntry
	handleUps  []maint.HandleUpdateEntry
	ops        []*ast.Operation
}

func (f *fakeTarget) Spec() *ast.Specification             { return f.spec }
func (f *fakeTarget) QuerySpecs() []*ast.Query              { return f.specs }
func (f *fakeTarget) QueryImpls() map[string]*ast.Query     { return f.impls }
func (f *fakeTarget) Concretization() []ast.CVarBinding     { return f.conc }
func (f *fakeTarget) Updates() []maint.UpdateEntry           { return f.updates }
func (f *fakeTarget) HandleUpdates() []maint.HandleUpdateEntry { return f.handleUps }
func (f *fakeTarget) Operations() []*ast.Operation          { return f.ops }

func TestAssembleOrdersIndependentUpdatesAndKeepsHandleUpdate(t *testing.T) {
	cvA := ast.EVar{Name: "cv_a", Typ: ast.TInt{}}
	cvB := ast.EVar{Name: "cv_b", Typ: ast.TInt{}}

	qA := &ast.Query{Name: "get_a", Vis: ast.Public, Ret: cvA}
	qB := &ast.Query{Name: "get_b", Vis: ast.Public, Ret: cvB}

	op := &ast.Operation{Name: "bump", Body: ast.SNoOp{}}

	ht := ast.THandle{Name: "Node", ValueType: ast.TInt{}}
	handleStm := ast.SForEach{
		LoopVar: ast.EVar{Name: "h", Typ: ht},
		Iter:    ast.ECall{Func: "get_a", Typ: ast.TSet{Elem: ht}},
		Body:    ast.SNoOp{},
	}

	target := &fakeTarget{
		spec: &ast.Specification{Name: "Example"},
		specs: []*ast.Query{qA, qB},
		impls: map[string]*ast.Query{"get_a": qA, "get_b": qB},
		conc: []ast.CVarBinding{
			{Var: cvA, Meaning: ast.ELit{Value: 0, Typ: ast.TInt{}}},
			{Var: cvB, Meaning: ast.ELit{Value: 0, Typ: ast.TInt{}}},
		},
		updates: []maint.UpdateEntry{
			{Var: cvA, Op: "bump", Stm: ast.SAssign{Lhs: cvA, Rhs: ast.ELit{Value: 1, Typ: ast.TInt{}}}},
			{Var: cvB, Op: "bump", Stm: ast.SAssign{Lhs: cvB, Rhs: ast.ELit{Value: 2, Typ: ast.TInt{}}}},
		},
		handleUps: []maint.HandleUpdateEntry{{Type: ht, Op: "bump", Stm: handleStm}},
		ops:       []*ast.Operation{op},
	}

	out := (&Assembler{Target: target}).Assemble()

	if len(out.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(out.Operations))
	}
	body := out.Operations[0].Body
	seq, ok := body.(ast.SSeq)
	if !ok {
		// a 3-statement body still ends up right-nested SSeq via ast.Seq
		t.Fatalf("expected a sequence body, got %T", body)
	}
	_ = seq
	var hasHandleLoop func(s ast.Stm) bool
	hasHandleLoop = func(s ast.Stm) bool {
		switch n := s.(type) {
		case ast.SSeq:
			return hasHandleLoop(n.S1) || hasHandleLoop(n.S2)
		case ast.SForEach:
			return n.LoopVar.Name == "h"
		}
		return false
	}
	if !hasHandleLoop(body) {
		t.Errorf("expected the handle update for bump to be kept in the assembled body")
	}
	if len(out.Queries) != 2 {
		t.Errorf("expected both queries to survive, got %d", len(out.Queries))
	}
	if len(out.StateVars) != 2 {
		t.Errorf("expected both concrete vars to survive as state vars, got %d", len(out.StateVars))
	}
}

func TestOrderBreakingCyclesProducesFullPermutation(t *testing.T) {
	a := ast.EVar{Name: "a", Typ: ast.TInt{}}
	b := ast.EVar{Name: "b", Typ: ast.TInt{}}
	c := ast.EVar{Name: "c", Typ: ast.TInt{}}

	// a -> b -> c -> a: a genuine cycle; the heuristic must still return
	// all three nodes exactly once.
	succ := map[string][]ast.EVar{
		"a": {b},
		"b": {c},
		"c": {a},
	}
	order := orderBreakingCycles([]ast.EVar{a, b, c}, func(v ast.EVar) []ast.EVar {
		return succ[v.Name]
	})

	if len(order) != 3 {
		t.Fatalf("expected 3 nodes in order, got %d", len(order))
	}
	seen := make(map[string]bool)
	for _, v := range order {
		seen[v.Name] = true
	}
	for _, name := range []string{"a", "b", "c"} {
		if !seen[name] {
			t.Errorf("node %q missing from order", name)
		}
	}
}
