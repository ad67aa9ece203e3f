// Package install implements the representation installer of spec.md 4.3:
// coalescing new concrete variables with existing ones by solver equality,
// registering a query's concrete implementation, and invoking the
// derivative collaborator to produce per-operation maintenance statements.
// Grounded on impls.py's Implementation.set_impl.
package install

import (
	"context"
	"fmt"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
	"github.com/izgzhen/synthctl/pkg/synth/errs"
	"github.com/izgzhen/synthctl/pkg/synth/oracle"
)

// Target is the subset of Implementation state the installer reads and
// mutates.
type Target interface {
	Spec() *ast.Specification
	AbstractState() []ast.EVar
	Invariants() []ast.Exp
	Concretization() []ast.CVarBinding
	AddConcretization(v ast.EVar, meaning ast.Exp)
	SetQueryImpl(name string, q *ast.Query)
	SetUpdate(v ast.EVar, opName string, stm ast.Stm)
	// IntroduceSubquery routes a helper query emitted by the derivative
	// collaborator through the subquery introduction pipeline (spec.md
	// 4.2), returning usedBy possibly rewritten to call an existing
	// equivalent query.
	IntroduceSubquery(ctx context.Context, subQ *ast.Query, usedBy ast.Stm, ctxVars *collab.RootCtx, extraAvailableState []ast.Exp) (ast.Stm, error)
}

// Installer installs representations into a Target.
type Installer struct {
	Oracle     *oracle.Oracle
	Derivative collab.Derivative
	Target     Target
}

// SetImpl installs rep as the concrete implementation of q with return
// expression ret, following the three steps of spec.md 4.3.
func (in *Installer) SetImpl(ctx context.Context, q *ast.Query, rep []ast.CVarBinding, ret ast.Exp) error {
	if ret.Type().Key() != q.Ret.Type().Key() {
		return errs.NewTypeMismatch(q.Name, fmt.Errorf("declared type %s, installed type %s", q.Ret.Type().Key(), ret.Type().Key()))
	}

	// Step 1: coalesce with existing concrete vars.
	var surviving []ast.CVarBinding
	repl := make(map[string]ast.Exp)
	for _, cand := range rep {
		merged := false
		for _, existing := range in.Target.Concretization() {
			if cand.Var.Typ.Key() != existing.Var.Typ.Key() {
				continue
			}
			eq, err := in.Oracle.Solver().Valid(ctx, in.Target.Invariants(), ast.EEq{Lhs: cand.Meaning, Rhs: existing.Meaning})
			if err != nil {
				return errs.NewCollaboratorFailure("solver.valid", err)
			}
			if eq {
				repl[cand.Var.Name] = existing.Var
				merged = true
				break
			}
		}
		if !merged {
			surviving = append(surviving, cand)
		}
	}
	ret = ast.Subst(ret, repl)

	// Step 2: register.
	for _, v := range surviving {
		in.Target.AddConcretization(v.Var, v.Meaning)
	}
	impl := q.Copy()
	impl.Ret = ret
	impl.Assumptions = nil
	in.Target.SetQueryImpl(q.Name, impl)

	// Step 3: incrementalize each newly registered concrete var, for every
	// operation.
	for _, v := range surviving {
		for _, op := range in.Target.Spec().Operations {
			var subgoals []*ast.Query
			stm, err := in.Derivative.MutateInPlace(
				v.Var, v.Meaning, op.Body,
				in.Target.AbstractState(), op.Assumptions, in.Target.Invariants(),
				&subgoals,
			)
			if err != nil {
				return errs.NewCollaboratorFailure("mutate_in_place", err)
			}
			ctxVars := &collab.RootCtx{StateVars: in.Target.AbstractState(), Args: op.ArgVars(), Funcs: in.Target.Spec().ExternFuncs}
			for _, sub := range subgoals {
				stm, err = in.Target.IntroduceSubquery(ctx, sub, stm, ctxVars, meanings(in.Target.Concretization()))
				if err != nil {
					return err
				}
			}
			in.Target.SetUpdate(v.Var, op.Name, stm)
		}
	}
	return nil
}

func meanings(bindings []ast.CVarBinding) []ast.Exp {
	out := make([]ast.Exp, len(bindings))
	for i, b := range bindings {
		out[i] = ast.EStateVar{Arg: b.Var}
	}
	return out
}
