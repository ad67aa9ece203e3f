// Package synthtest provides minimal, deterministic fakes for every
// collab interface, so pkg/synth's driver can be exercised end to end
// without a real SMT solver or search procedure. Grounded on the
// teacher's table-driven fakes (pkg/engine's hand-rolled test doubles,
// e.g. the fakeProvisioner pattern in engine_test.go): small structs with
// closures or static answers, not a mocking framework.
package synthtest

import (
	"context"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
)

// TrivialSolver always answers Valid according to a static predicate
// supplied by the caller, defaulting to "nothing is valid" (the safest
// default: it never lets the oracle or installer merge two things that
// a real solver might have rejected).
type TrivialSolver struct {
	// AlwaysValid, when set, makes Valid return true unconditionally.
	// Used by scenario tests that want every entailment/equality check
	// to pass without modelling real arithmetic facts.
	AlwaysValid bool
	// ValidKeys additionally holds specific (assumption-set, exp) checks
	// that should be reported valid, addressed by exp.Key() alone,
	// since the scenario tests that use this care about one or two
	// specific facts rather than a general theory.
	ValidKeys map[string]bool
	Calls     int
}

func (s *TrivialSolver) Valid(ctx context.Context, assumptions []ast.Exp, exp ast.Exp) (bool, error) {
	s.Calls++
	if s.AlwaysValid {
		return true, nil
	}
	if s.ValidKeys != nil && s.ValidKeys[exp.Key()] {
		return true, nil
	}
	return false, nil
}

// SizeCost scores a representation by the combined syntactic size of its
// concretization meanings and return expression, the simplest cost model
// that still distinguishes "smaller is better".
type SizeCost struct{}

func (SizeCost) Cost(rep []ast.CVarBinding, ret ast.Exp) (float64, error) {
	total := ast.Size(ret)
	for _, b := range rep {
		total += ast.Size(b.Meaning)
	}
	return float64(total), nil
}

// NoImprovement is an Improver that immediately closes its channel without
// ever proposing a solution, modelling a query already at a local optimum.
// Most driver-level tests only exercise ConstructInitial and never call
// Improve, but Improve must still be safe to invoke.
type NoImprovement struct{}

func (NoImprovement) Improve(ctx context.Context, target ast.Exp, assumptions, hints []ast.Exp, binders []ast.EVar, cost collab.CostModel) (<-chan collab.Solution, error) {
	ch := make(chan collab.Solution)
	close(ch)
	return ch, nil
}

// ScriptedImprover yields a fixed, ordered list of solutions and then
// closes, ignoring ctx cancellation only after it has already sent
// everything (real improvers must stop promptly on cancellation; this
// fake is only used in tests that let the search run to completion).
type ScriptedImprover struct {
	Solutions []collab.Solution
}

func (s *ScriptedImprover) Improve(ctx context.Context, target ast.Exp, assumptions, hints []ast.Exp, binders []ast.EVar, cost collab.CostModel) (<-chan collab.Solution, error) {
	ch := make(chan collab.Solution, len(s.Solutions))
	for _, sol := range s.Solutions {
		select {
		case <-ctx.Done():
			close(ch)
			return ch, nil
		case ch <- sol:
		}
	}
	close(ch)
	return ch, nil
}

// IdentityDerivative is a Derivative for abstract state that operations
// never mutate: MutateInPlace always returns a no-op and Mutate always
// returns its input expression unchanged. Scenario tests that want real
// incrementalized code supply their own Derivative instead.
type IdentityDerivative struct{}

func (IdentityDerivative) MutateInPlace(lhs, rhsExpr ast.Exp, opBody ast.Stm, abstractState []ast.EVar, assumptions, invariants []ast.Exp, subgoalsOut *[]*ast.Query) (ast.Stm, error) {
	return ast.SNoOp{}, nil
}

func (IdentityDerivative) Mutate(e ast.Exp, opBody ast.Stm) (ast.Exp, error) {
	return e, nil
}

// PassthroughRepairer returns e unchanged, adding no EStateVar markers: it
// assumes the caller has already expressed which subexpressions are
// concrete.
// Scenario tests that need real boundary repair supply their own.
type PassthroughRepairer struct{}

func (PassthroughRepairer) Repair(e ast.Exp, ctx *collab.RootCtx, extraAvailableState []ast.Exp) (ast.Exp, error) {
	return e, nil
}

// IdentitySimplifier returns its input unchanged, satisfying the strict
// monotonicity guard trivially (size never grows).
type IdentitySimplifier struct{}

func (IdentitySimplifier) Simplify(e ast.Exp) (ast.Exp, error) { return e, nil }

// NoHandles is a HandleAnalyzer reporting that no handle type is ever
// reachable, for scenario tests whose abstract state has no THandle
// values at all.
type NoHandles struct{}

func (NoHandles) ReachableHandlesAtMethod(spec *ast.Specification, m *ast.Query) (map[ast.Type]ast.Exp, error) {
	return nil, nil
}

func (NoHandles) ImplicitHandleAssumptions(reachable map[ast.Type]ast.Exp) ([]ast.Exp, error) {
	return nil, nil
}

// SingleHandleAnalyzer reports exactly one handle type as reachable via a
// fixed bag expression, for scenario tests that exercise the handle-update
// planner without a real points-to analysis.
type SingleHandleAnalyzer struct {
	Type Type
	Bag  ast.Exp
}

// Type aliases ast.Type so callers can write synthtest.SingleHandleAnalyzer
// literals without importing ast twice under different names.
type Type = ast.Type

func (h SingleHandleAnalyzer) ReachableHandlesAtMethod(spec *ast.Specification, m *ast.Query) (map[ast.Type]ast.Exp, error) {
	return map[ast.Type]ast.Exp{h.Type: h.Bag}, nil
}

func (h SingleHandleAnalyzer) ImplicitHandleAssumptions(reachable map[ast.Type]ast.Exp) ([]ast.Exp, error) {
	return nil, nil
}
