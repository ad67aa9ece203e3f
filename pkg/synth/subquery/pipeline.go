// Package subquery implements the four-step subquery introduction pipeline
// of spec.md 4.2, grounded on impls.py's Implementation._add_subquery.
package subquery

import (
	"context"
	"fmt"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
	"github.com/izgzhen/synthctl/pkg/synth/errs"
	"github.com/izgzhen/synthctl/pkg/synth/oracle"
)

// Registry is the subset of Implementation state the pipeline reads and
// mutates: the list of known query specs (for dedup) and a callback to
// register a freshly accepted query (which recurses into the
// representation installer).
type Registry interface {
	QuerySpecs() []*ast.Query
	AddQuery(q *ast.Query) error
}

// Pipeline runs the subquery introduction steps described in spec.md 4.2.
type Pipeline struct {
	Oracle     *oracle.Oracle
	Repairer   collab.WellFormednessRepairer
	Simplifier collab.Simplifier
	Handles    collab.HandleAnalyzer
	Spec       *ast.Specification
	Registry   Registry
}

// Introduce runs sub_q through handle-assumption strengthening, boundary
// repair, strict-monotonicity simplification, and deduplication, returning
// usedBy rewritten to reference whichever query name ultimately represents
// sub_q (either sub_q itself, newly registered, or an existing equivalent).
func (p *Pipeline) Introduce(ctx context.Context, subQ *ast.Query, usedBy ast.Stm, ctxVars *collab.RootCtx, extraAvailableState []ast.Exp) (ast.Stm, error) {
	subQ = subQ.Copy()

	// Step 1: handle-assumption strengthening.
	reachable, err := p.Handles.ReachableHandlesAtMethod(p.Spec, subQ)
	if err != nil {
		return nil, errs.NewCollaboratorFailure("reachable_handles_at_method", err)
	}
	implicit, err := p.Handles.ImplicitHandleAssumptions(reachable)
	if err != nil {
		return nil, errs.NewCollaboratorFailure("implicit_handle_assumptions", err)
	}
	for _, fact := range implicit {
		entailed, err := p.entailed(ctx, subQ.Assumptions, fact)
		if err != nil {
			return nil, err
		}
		if !entailed {
			subQ.Assumptions = append(subQ.Assumptions, fact)
		}
	}

	// Step 2: boundary repair.
	repaired, err := p.Repairer.Repair(ast.StripStateVar(subQ.Ret), ctxVars, extraAvailableState)
	if err != nil {
		return nil, errs.NewCollaboratorFailure("repair_well_formedness", err)
	}
	subQ.Ret = repaired

	// Step 3: simplification, with the strict monotonicity guard.
	sizeBefore := ast.SizeAll(subQ.Assumptions)
	newAssumptions := make([]ast.Exp, len(subQ.Assumptions))
	for i, a := range subQ.Assumptions {
		simplified, err := p.Simplifier.Simplify(a)
		if err != nil {
			return nil, errs.NewCollaboratorFailure("simplify", err)
		}
		if ast.Size(simplified) > ast.Size(a) {
			simplified = a // per-assumption revert is allowed; only the aggregate guard is strict
		}
		newAssumptions[i] = simplified
	}
	sizeAfter := ast.SizeAll(newAssumptions)
	if sizeAfter > sizeBefore {
		return nil, errs.NewBadSimplification(subQ.Name, sizeBefore, sizeAfter)
	}
	subQ.Assumptions = newAssumptions

	simplifiedRet, err := p.Simplifier.Simplify(subQ.Ret)
	if err != nil {
		return nil, errs.NewCollaboratorFailure("simplify", err)
	}
	subQ.Ret = simplifiedRet

	// Step 4: deduplication.
	for _, qq := range p.Registry.QuerySpecs() {
		ok, perm, err := p.Oracle.Equivalent(ctx, qq, subQ)
		if err != nil {
			return nil, err
		}
		if ok {
			return ast.RewriteCallsStm(usedBy, subQ.Name, qq.Name, perm), nil
		}
	}

	if err := p.Registry.AddQuery(subQ); err != nil {
		return nil, fmt.Errorf("registering subquery %s: %w", subQ.Name, err)
	}
	return usedBy, nil
}

func (p *Pipeline) entailed(ctx context.Context, assumptions []ast.Exp, fact ast.Exp) (bool, error) {
	all := ast.EAll{Clauses: assumptions}
	ok, err := p.Oracle.Solver().Valid(ctx, nil, ast.EImplies{Lhs: all, Rhs: fact})
	if err != nil {
		return false, errs.NewCollaboratorFailure("solver.valid", err)
	}
	return ok, nil
}
