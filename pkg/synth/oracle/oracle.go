// Package oracle wraps a collab.Solver to decide whether two queries are
// observationally equivalent, caching results under a key that includes the
// abstract state and invariants (spec.md 9: "must cache under a key that
// includes the abstract state and invariants; otherwise dedup cost
// dominates"). Grounded on cozy's queries_equivalent (misc.py) for the
// check sequence and on impls.py's state_solver (a ModelCachingSolver) for
// the cache-wrapper shape.
package oracle

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
)

// cacheKeyHashThreshold is the raw cacheKey string length above which the
// oracle stores a blake2b digest instead of the string itself, keeping the
// cache map's keys bounded in size regardless of how large the ambient
// state/invariant set or the compared queries' return expressions grow.
const cacheKeyHashThreshold = 256

// blake2bDigestLen is the byte length of a hashed cacheKey, kept as a named
// package constant for tests that want to assert the fallback path was taken.
const blake2bDigestLen = blake2b.Size256

// Oracle is the equivalence oracle described in spec.md 4.1. It is used by
// one goroutine at a time (the driver goroutine while the implementation is
// built and planned, the single install-consumer goroutine during
// improvement); the cache map therefore needs no synchronization (spec.md 9's deliberate no-lock design, recorded in
// DESIGN.md).
type Oracle struct {
	solver      collab.Solver
	stateVars   []ast.EVar
	invariants  []ast.Exp
	dedup       bool // deduplicate-subqueries: when false, fall back to syntactic check
	cache       map[string]cacheEntry
}

type cacheEntry struct {
	ok   bool
	perm []int
}

// New builds an Oracle over the given solver, abstract state, and ambient
// invariants. dedup mirrors the deduplicate-subqueries configuration flag;
// when false the oracle never invokes the solver and instead falls back to
// syntactic alpha-equivalence (spec.md 4.1).
func New(solver collab.Solver, stateVars []ast.EVar, invariants []ast.Exp, dedup bool) *Oracle {
	return &Oracle{
		solver:     solver,
		stateVars:  stateVars,
		invariants: invariants,
		dedup:      dedup,
		cache:      make(map[string]cacheEntry),
	}
}

// Solver returns the underlying collab.Solver, for callers (such as the
// subquery introduction pipeline) that need to check entailment of a single
// fact rather than full query equivalence.
func (o *Oracle) Solver() collab.Solver { return o.solver }

// Equivalent decides whether q1 and q2 are observationally equivalent:
// matching return types, matching arg types positionally, and (when the
// solver is consulted) assumptions(q1) <=> assumptions(q2) and
// assumptions(q1) => ret(q1) = ret(q2). On success it also returns the
// argument-position permutation mapping q2's args onto q1's, for call-site
// rewriting (spec.md 4.1).
func (o *Oracle) Equivalent(ctx context.Context, q1, q2 *ast.Query) (bool, []int, error) {
	if q1.Ret.Type().Key() != q2.Ret.Type().Key() {
		return false, nil, nil
	}
	t1, t2 := q1.ArgTypes(), q2.ArgTypes()
	if len(t1) != len(t2) {
		return false, nil, nil
	}
	// arg multiset-by-type must match for a permutation to exist; compute
	// the permutation greedily by matching q2 arg i to the first
	// as-yet-unmatched q1 arg of the same type.
	perm, ok := matchArgTypes(t1, t2)
	if !ok {
		return false, nil, nil
	}

	if !o.dedup {
		return ast.AlphaEquivalent(q1.Ret, q2.Ret) && sameAssumptions(q1.Assumptions, q2.Assumptions), perm, nil
	}

	key := o.cacheKey(q1, q2)
	if e, hit := o.cache[key]; hit {
		return e.ok, e.perm, nil
	}

	q1a := ast.EAll{Clauses: q1.Assumptions}
	q2a := ast.EAll{Clauses: q2.Assumptions}

	assumptionsEquiv, err := o.solver.Valid(ctx, o.invariants, ast.EEq{Lhs: q1a, Rhs: q2a})
	if err != nil {
		return false, nil, err
	}
	if !assumptionsEquiv {
		o.cache[key] = cacheEntry{ok: false}
		return false, nil, nil
	}

	retsEquiv, err := o.solver.Valid(ctx, o.invariants, ast.EImplies{Lhs: q1a, Rhs: ast.EEq{Lhs: q1.Ret, Rhs: permuteRet(q2, q1, perm)}})
	if err != nil {
		return false, nil, err
	}

	o.cache[key] = cacheEntry{ok: retsEquiv, perm: perm}
	return retsEquiv, perm, nil
}

// permuteRet substitutes q2's own arg vars for q1's positional arg vars
// inside q2.Ret so the equality check above compares like-for-like
// variable names.
func permuteRet(q2, q1 *ast.Query, perm []int) ast.Exp {
	repl := make(map[string]ast.Exp, len(perm))
	q1Args := q1.ArgVars()
	q2Args := q2.ArgVars()
	for i, p := range perm {
		repl[q2Args[p].Name] = q1Args[i]
	}
	return ast.Subst(q2.Ret, repl)
}

func matchArgTypes(t1, t2 []ast.Type) ([]int, bool) {
	used := make([]bool, len(t2))
	perm := make([]int, len(t1))
	for i, t := range t1 {
		found := -1
		for j, u := range t2 {
			if used[j] {
				continue
			}
			if u.Key() == t.Key() {
				found = j
				used[j] = true
				break
			}
		}
		if found == -1 {
			return nil, false
		}
		perm[i] = found
	}
	return perm, true
}

func sameAssumptions(a, b []ast.Exp) bool {
	if len(a) != len(b) {
		return false
	}
	ka := make([]string, len(a))
	kb := make([]string, len(b))
	for i := range a {
		ka[i] = a[i].Key()
		kb[i] = b[i].Key()
	}
	return reflect.DeepEqual(sortedCopy(ka), sortedCopy(kb))
}

func sortedCopy(s []string) []string {
	out := append([]string(nil), s...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func (o *Oracle) cacheKey(q1, q2 *ast.Query) string {
	var b strings.Builder
	for _, v := range o.stateVars {
		b.WriteString(v.Key())
		b.WriteByte(';')
	}
	for _, inv := range o.invariants {
		b.WriteString(inv.Key())
		b.WriteByte(';')
	}
	fmt.Fprintf(&b, "|%s|%s", q1.Ret.Key(), q2.Ret.Key())
	raw := b.String()
	if len(raw) <= cacheKeyHashThreshold {
		return raw
	}
	sum := blake2b.Sum256([]byte(raw))
	return string(sum[:])
}
