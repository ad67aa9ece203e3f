// Package handles implements the handle-update planner of spec.md 4.4,
// grounded on impls.py's Implementation._setup_handle_updates.
package handles

import (
	"context"
	"fmt"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
	"github.com/izgzhen/synthctl/pkg/synth/errs"
)

// Target is the subset of Implementation state the planner reads and
// mutates.
type Target interface {
	Spec() *ast.Specification
	AbstractState() []ast.EVar
	Invariants() []ast.Exp
	SetHandleUpdate(t ast.Type, opName string, stm ast.Stm)
	IntroduceSubquery(ctx context.Context, subQ *ast.Query, usedBy ast.Stm, ctxVars *collab.RootCtx, extraAvailableState []ast.Exp) (ast.Stm, error)
}

// Planner plans handle updates for every operation.
type Planner struct {
	Derivative collab.Derivative
	Handles    collab.HandleAnalyzer
	Target     Target
}

// PlanAll must be called exactly once, after every public query has been
// installed and before the first GC pass (spec.md 4.4's stated invariant).
func (p *Planner) PlanAll(ctx context.Context) error {
	for _, op := range p.Target.Spec().Operations {
		if err := p.planOp(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) planOp(ctx context.Context, op *ast.Operation) error {
	reachable, err := p.Handles.ReachableHandlesAtMethod(p.Target.Spec(), syntheticQueryFor(op))
	if err != nil {
		return errs.NewCollaboratorFailure("reachable_handles_at_method", err)
	}

	for handleType, bag := range reachable {
		ht, ok := handleType.(ast.THandle)
		if !ok {
			return fmt.Errorf("handles: reachable type %s is not a handle type", handleType.Key())
		}

		// Step 1: fresh lambda-bound handle variable.
		h := ast.FreshVar(ht)
		lval := ast.EGetField{Rec: h, Field: "val", Typ: ht.ValueType}

		// Step 2: compute the handle's post-op value.
		newVal, err := p.Derivative.Mutate(lval, op.Body)
		if err != nil {
			return errs.NewCollaboratorFailure("mutate", err)
		}

		// Step 3: modified_handles helper query.
		modifiedHandlesName := ast.FreshName("modified_handles")
		distinctBag := ast.EUnaryOp{Op: ast.UOpDistinct, Arg: bag, Typ: ast.TSet{Elem: ht}}
		modifiedRet := ast.EFilter{
			Bag: distinctBag,
			Pred: &ast.ELambda{
				Arg:  h,
				Body: ast.ENot{Arg: ast.EEq{Lhs: lval, Rhs: newVal}},
			},
			Typ: ast.TSet{Elem: ht},
		}
		freeArgs := freeArgsOf(modifiedRet, op.Assumptions, op)
		modifiedHandles := &ast.Query{
			Name:        modifiedHandlesName,
			Vis:         ast.Internal,
			Args:        freeArgs,
			Assumptions: op.Assumptions,
			Ret:         modifiedRet,
			Docstring:   "handles modified by " + op.Name,
		}

		// Step 4: per-handle in-place mutation.
		assumptions := append(append([]ast.Exp{}, op.Assumptions...),
			ast.EIn{Elem: h, Bag: bag},
			ast.EIn{Elem: h, Bag: modifiedHandles.Ret},
		)
		var subgoals []*ast.Query
		stateUpdate, err := p.Derivative.MutateInPlace(lval, lval, op.Body, p.Target.AbstractState(), assumptions, p.Target.Invariants(), &subgoals)
		if err != nil {
			return errs.NewCollaboratorFailure("mutate_in_place", err)
		}

		ctxVars := &collab.RootCtx{StateVars: p.Target.AbstractState(), Args: op.ArgVars(), Funcs: p.Target.Spec().ExternFuncs}
		for _, sub := range subgoals {
			stateUpdate, err = p.Target.IntroduceSubquery(ctx, sub, stateUpdate, ctxVars, nil)
			if err != nil {
				return err
			}
		}

		var final ast.Stm = ast.SNoOp{}
		if _, isNoOp := stateUpdate.(ast.SNoOp); !isNoOp {
			final = ast.SForEach{
				LoopVar: h,
				Iter:    ast.ECall{Func: modifiedHandles.Name, Args: callArgs(freeArgs), Typ: modifiedRet.Type()},
				Body:    stateUpdate,
			}
		}

		// Step 5: route modified_handles itself through subquery
		// introduction, then store the final statement.
		final, err = p.Target.IntroduceSubquery(ctx, modifiedHandles, final, ctxVars, nil)
		if err != nil {
			return err
		}

		p.Target.SetHandleUpdate(ht, op.Name, final)
	}
	return nil
}

func callArgs(args []ast.Arg) []ast.Exp {
	out := make([]ast.Exp, len(args))
	for i, a := range args {
		out[i] = ast.EVar{Name: a.Name, Typ: a.Type}
	}
	return out
}

// freeArgsOf returns the free variables of ret and assumptions, unioned
// (mirroring free_vars(modified_handles) being computed after assumptions
// are attached), that are also among op's arguments (i.e. excluding
// abstract state), as Query args.
func freeArgsOf(ret ast.Exp, assumptions []ast.Exp, op *ast.Operation) []ast.Arg {
	fv := ast.FreeVars(ret)
	for _, a := range assumptions {
		for name, typ := range ast.FreeVars(a) {
			fv[name] = typ
		}
	}
	var out []ast.Arg
	for _, a := range op.Args {
		if _, ok := fv[a.Name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// syntheticQueryFor adapts an Operation into the minimal *ast.Query shape
// ReachableHandlesAtMethod expects (it only needs the method's argument
// list and assumptions, not a return expression).
func syntheticQueryFor(op *ast.Operation) *ast.Query {
	return &ast.Query{
		Name:        op.Name,
		Args:        op.Args,
		Assumptions: op.Assumptions,
		Ret:         ast.ELit{Value: true, Typ: ast.TBool{}},
	}
}
