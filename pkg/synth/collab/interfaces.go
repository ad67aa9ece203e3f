// Package collab declares the interfaces to every out-of-scope collaborator
// the synthesis driver depends on: the SMT solver, the cost model, the
// improver search, the incremental-derivative transformer, the
// well-formedness repairer, and the handle-reachability analyses. The driver
// itself never implements search, proof, or code generation — it only calls
// through these interfaces.
package collab

import (
	"context"

	"github.com/izgzhen/synthctl/pkg/ast"
)

// Solver decides validity of boolean expressions under a context and a set
// of ambient assumptions, with caching left to the caller (the equivalence
// oracle).
type Solver interface {
	// Valid reports whether exp is a tautology given ctx's declarations and
	// the solver's ambient assumptions.
	Valid(ctx context.Context, assumptions []ast.Exp, exp ast.Exp) (bool, error)
}

// CostModel totally orders candidate (rep, ret) pairs for a query, used by
// Improver implementations to decide whether a newly found representation
// is actually an improvement.
type CostModel interface {
	// Cost returns a real-valued estimate; lower is better. Costs are only
	// meaningful relative to other costs produced by the same CostModel
	// instance.
	Cost(rep []ast.CVarBinding, ret ast.Exp) (float64, error)
}

// Solution is a single candidate representation yielded by an Improver.
type Solution struct {
	Rep []ast.CVarBinding
	Ret ast.Exp
}

// Improver lazily searches for improving representations of a target
// expression. Solutions is closed when the search proves local optimality,
// is cancelled via ctx, or the caller stops reading. Improve must return
// promptly after ctx is cancelled.
type Improver interface {
	Improve(ctx context.Context, target ast.Exp, assumptions []ast.Exp, hints []ast.Exp, binders []ast.EVar, cost CostModel) (<-chan Solution, error)
}

// Derivative produces incremental-maintenance code: given a concrete
// variable's meaning and an operation body, it returns a statement that
// keeps the variable's value in lockstep with the abstract mutation, plus
// any helper queries ("subgoals") the maintenance code introduces.
type Derivative interface {
	// MutateInPlace returns a Stm that updates lhs (currently holding the
	// value of rhsExpr) so that after opBody runs over the abstract state,
	// lhs again equals rhsExpr. Any subqueries it had to introduce to
	// express the update are appended to subgoalsOut.
	MutateInPlace(
		lhs, rhsExpr ast.Exp,
		opBody ast.Stm,
		abstractState []ast.EVar,
		assumptions []ast.Exp,
		invariants []ast.Exp,
		subgoalsOut *[]*ast.Query,
	) (ast.Stm, error)

	// Mutate returns the pure expression denoting e's value after opBody
	// runs, used by the handle-update planner to compute a handle's new
	// value without emitting a statement.
	Mutate(e ast.Exp, opBody ast.Stm) (ast.Exp, error)
}

// WellFormednessRepairer inserts ast.EStateVar markers into an expression so
// that every subexpression computable from concrete state is marked as
// such, given additional concrete-state expressions available in context.
type WellFormednessRepairer interface {
	Repair(e ast.Exp, ctx *RootCtx, extraAvailableState []ast.Exp) (ast.Exp, error)
}

// HandleAnalyzer provides the two static analyses over handle types that
// the handle-update planner needs.
type HandleAnalyzer interface {
	// ReachableHandlesAtMethod returns, for each handle type reachable from
	// the given method's context, the bag expression enumerating all
	// handles of that type reachable from state.
	ReachableHandlesAtMethod(spec *ast.Specification, m *ast.Query) (map[ast.Type]ast.Exp, error)

	// ImplicitHandleAssumptions returns facts that must hold about the
	// given reachable-handle bags (e.g. distinctness), used to strengthen a
	// subquery's assumptions in spec.md 4.2 step 1.
	ImplicitHandleAssumptions(reachable map[ast.Type]ast.Exp) ([]ast.Exp, error)
}

// Simplifier rewrites an expression to an equivalent but hopefully smaller
// one. The subquery introduction pipeline (spec.md 4.2 step 3) applies it to
// a helper query's assumptions and return expression individually, under a
// strict monotonicity guard: if the simplifier ever grows the aggregate
// size of a query's assumptions, that is a collaborator bug the driver
// aborts on rather than silently tolerating.
type Simplifier interface {
	Simplify(e ast.Exp) (ast.Exp, error)
}

// RootCtx is the typing context passed to the solver and the
// well-formedness repairer: the abstract state variables, the current
// method's arguments, and the extern function signatures.
type RootCtx struct {
	StateVars []ast.EVar
	Args      []ast.EVar
	Funcs     map[string]ast.TFunc
}
