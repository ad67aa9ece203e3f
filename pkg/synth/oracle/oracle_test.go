package oracle

import (
	"context"
	"testing"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/synthtest"
)

func TestEquivalentMatchesOnTypeAndAssumptions(t *testing.T) {
	xs := ast.EVar{Name: "xs", Typ: ast.TBag{Elem: ast.TInt{}}}
	q1 := &ast.Query{
		Name: "q1",
		Args: []ast.Arg{{Name: "y", Type: ast.TInt{}}},
		Ret:  ast.EVar{Name: "y", Typ: ast.TInt{}},
	}
	q2 := &ast.Query{
		Name: "q2",
		Args: []ast.Arg{{Name: "z", Type: ast.TInt{}}},
		Ret:  ast.EVar{Name: "z", Typ: ast.TInt{}},
	}

	o := New(&synthtest.TrivialSolver{AlwaysValid: true}, []ast.EVar{xs}, nil, true)
	ok, perm, err := o.Equivalent(context.Background(), q1, q2)
	if err != nil {
		t.Fatalf("Equivalent: %v", err)
	}
	if !ok {
		t.Fatal("expected q1 and q2 to be reported equivalent")
	}
	if len(perm) != 1 || perm[0] != 0 {
		t.Fatalf("perm = %v, want [0]", perm)
	}
}

func TestEquivalentRejectsTypeMismatch(t *testing.T) {
	q1 := &ast.Query{Name: "q1", Ret: ast.ELit{Value: int64(1), Typ: ast.TInt{}}}
	q2 := &ast.Query{Name: "q2", Ret: ast.ELit{Value: true, Typ: ast.TBool{}}}

	o := New(&synthtest.TrivialSolver{AlwaysValid: true}, nil, nil, true)
	ok, _, err := o.Equivalent(context.Background(), q1, q2)
	if err != nil {
		t.Fatalf("Equivalent: %v", err)
	}
	if ok {
		t.Fatal("expected a return-type mismatch to reject equivalence")
	}
}

// TestCacheKeyHashesLargeInputs exercises the blake2b fallback path by
// supplying enough invariants that the raw cacheKey string exceeds
// cacheKeyHashThreshold, then checks the oracle still produces consistent
// (cached) answers across repeated calls with the same large input.
func TestCacheKeyHashesLargeInputs(t *testing.T) {
	var invariants []ast.Exp
	for i := 0; i < 64; i++ {
		invariants = append(invariants, ast.EVar{Name: "a_very_long_invariant_variable_name", Typ: ast.TBool{}})
	}

	q1 := &ast.Query{Name: "q1", Ret: ast.ELit{Value: int64(1), Typ: ast.TInt{}}}
	q2 := &ast.Query{Name: "q2", Ret: ast.ELit{Value: int64(1), Typ: ast.TInt{}}}

	solver := &synthtest.TrivialSolver{AlwaysValid: true}
	o := New(solver, nil, invariants, true)

	if got := o.cacheKey(q1, q2); len(got) != blake2bDigestLen {
		t.Fatalf("cacheKey length = %d, want a %d-byte digest for an oversized key", len(got), blake2bDigestLen)
	}

	ok1, _, err := o.Equivalent(context.Background(), q1, q2)
	if err != nil {
		t.Fatalf("Equivalent (first call): %v", err)
	}
	callsAfterFirst := solver.Calls

	ok2, _, err := o.Equivalent(context.Background(), q1, q2)
	if err != nil {
		t.Fatalf("Equivalent (second call): %v", err)
	}
	if ok1 != ok2 {
		t.Fatalf("cached answer changed across calls: %v then %v", ok1, ok2)
	}
	if solver.Calls != callsAfterFirst {
		t.Fatalf("expected the second call to hit the cache, solver.Calls went from %d to %d", callsAfterFirst, solver.Calls)
	}
}

// TestEquivalentCyclicArgPermutation exercises a 3-argument match whose
// types force a non-involutive (3-cycle) permutation, then checks that
// rewriting a call site with the returned permutation lands each argument
// on the position with the matching type. A swap or identity permutation
// cannot distinguish a correct rewrite from its functional inverse; a
// 3-cycle can.
func TestEquivalentCyclicArgPermutation(t *testing.T) {
	tSet := ast.TSet{Elem: ast.TInt{}}

	q1 := &ast.Query{
		Name: "q1",
		Args: []ast.Arg{
			{Name: "a0", Type: ast.TInt{}},
			{Name: "a1", Type: ast.TBool{}},
			{Name: "a2", Type: tSet},
		},
		Ret: ast.EVar{Name: "a0", Typ: ast.TInt{}},
	}
	q2 := &ast.Query{
		Name: "q2",
		Args: []ast.Arg{
			{Name: "b0", Type: ast.TBool{}},
			{Name: "b1", Type: tSet},
			{Name: "b2", Type: ast.TInt{}},
		},
		Ret: ast.EVar{Name: "b2", Typ: ast.TInt{}},
	}

	o := New(&synthtest.TrivialSolver{AlwaysValid: true}, nil, nil, true)
	ok, perm, err := o.Equivalent(context.Background(), q1, q2)
	if err != nil {
		t.Fatalf("Equivalent: %v", err)
	}
	if !ok {
		t.Fatal("expected q1 and q2 to be reported equivalent")
	}
	wantPerm := []int{2, 0, 1}
	if len(perm) != len(wantPerm) {
		t.Fatalf("perm = %v, want %v", perm, wantPerm)
	}
	for i, w := range wantPerm {
		if perm[i] != w {
			t.Fatalf("perm = %v, want %v", perm, wantPerm)
		}
	}

	// Args at a q2-typed call site, positionally: bool, set, int.
	xBool := ast.EVar{Name: "xBool", Typ: ast.TBool{}}
	xSet := ast.EVar{Name: "xSet", Typ: tSet}
	xInt := ast.EVar{Name: "xInt", Typ: ast.TInt{}}
	call := ast.ECall{Func: "q2", Args: []ast.Exp{xBool, xSet, xInt}, Typ: ast.TInt{}}

	rewritten := ast.RewriteCalls(call, "q2", "q1", perm).(ast.ECall)
	want := []ast.Exp{xInt, xBool, xSet} // matches q1's arg types: int, bool, set
	for i, w := range want {
		if rewritten.Args[i] != w {
			t.Fatalf("rewritten.Args[%d] = %v, want %v (full: %v)", i, rewritten.Args[i], w, rewritten.Args)
		}
	}
}
