// Package ctxbuild constructs the typing context used by the solver and by
// the well-formedness repairer: the abstract state variables, a method's
// arguments, and the extern function signatures, grounded on impls.py's
// Implementation.context_for_method.
package ctxbuild

import (
	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
)

// ForMethod builds the RootCtx for checking or repairing expressions that
// appear in m (a query or operation), given the specification's abstract
// state and extern function table.
func ForMethod(spec *ast.Specification, stateVars []ast.EVar, args []ast.EVar) *collab.RootCtx {
	return &collab.RootCtx{
		StateVars: stateVars,
		Args:      args,
		Funcs:     spec.ExternFuncs,
	}
}

// ForQuery is a convenience wrapper over ForMethod for a *ast.Query.
func ForQuery(spec *ast.Specification, stateVars []ast.EVar, q *ast.Query) *collab.RootCtx {
	return ForMethod(spec, stateVars, q.ArgVars())
}

// ForOperation is a convenience wrapper over ForMethod for an *ast.Operation.
func ForOperation(spec *ast.Specification, stateVars []ast.EVar, op *ast.Operation) *collab.RootCtx {
	return ForMethod(spec, stateVars, op.ArgVars())
}
