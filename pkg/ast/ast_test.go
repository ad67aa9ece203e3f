package ast

import "testing"

func TestFreeVarsExcludesLambdaBinder(t *testing.T) {
	xs := EVar{Name: "xs", Typ: TBag{Elem: TInt{}}}
	h := EVar{Name: "h", Typ: TInt{}}
	e := EFilter{
		Bag:  xs,
		Pred: &ELambda{Arg: h, Body: EEq{Lhs: h, Rhs: ELit{Value: int64(1), Typ: TInt{}}}},
		Typ:  TBag{Elem: TInt{}},
	}

	fv := FreeVars(e)
	if _, ok := fv["h"]; ok {
		t.Fatalf("expected lambda-bound h to be excluded from free vars, got %v", fv)
	}
	if _, ok := fv["xs"]; !ok {
		t.Fatalf("expected xs to be free, got %v", fv)
	}
}

func TestSubstAvoidsCapture(t *testing.T) {
	h := EVar{Name: "h", Typ: TInt{}}
	y := EVar{Name: "y", Typ: TInt{}}
	// lambda h. h = y, substituting y -> h should not let the lambda's h
	// capture the substituted reference to the outer h.
	l := &ELambda{Arg: h, Body: EEq{Lhs: h, Rhs: y}}
	e := EFilter{Bag: EVar{Name: "xs", Typ: TBag{Elem: TInt{}}}, Pred: l, Typ: TBag{Elem: TInt{}}}

	replaced := Subst(e, map[string]Exp{"y": h}).(EFilter)
	if replaced.Pred.Arg.Name == "h" {
		t.Fatalf("expected lambda binder to be renamed to avoid capturing substituted h")
	}
	eq := replaced.Pred.Body.(EEq)
	rhs, ok := eq.Rhs.(EVar)
	if !ok || rhs.Name != "h" {
		t.Fatalf("expected substituted rhs to still reference original h, got %#v", eq.Rhs)
	}
}

func TestAlphaEquivalentIgnoresBinderNames(t *testing.T) {
	xs := EVar{Name: "xs", Typ: TBag{Elem: TInt{}}}
	a := EFilter{
		Bag:  xs,
		Pred: &ELambda{Arg: EVar{Name: "h", Typ: TInt{}}, Body: EEq{Lhs: EVar{Name: "h", Typ: TInt{}}, Rhs: ELit{Value: int64(0), Typ: TInt{}}}},
		Typ:  TBag{Elem: TInt{}},
	}
	b := EFilter{
		Bag:  xs,
		Pred: &ELambda{Arg: EVar{Name: "z", Typ: TInt{}}, Body: EEq{Lhs: EVar{Name: "z", Typ: TInt{}}, Rhs: ELit{Value: int64(0), Typ: TInt{}}}},
		Typ:  TBag{Elem: TInt{}},
	}

	if !AlphaEquivalent(a, b) {
		t.Fatalf("expected a and b to be alpha-equivalent")
	}
}

func TestSizeCountsNodes(t *testing.T) {
	e := EEq{Lhs: EVar{Name: "x", Typ: TInt{}}, Rhs: ELit{Value: int64(1), Typ: TInt{}}}
	if got := Size(e); got != 3 {
		t.Fatalf("expected size 3, got %d", got)
	}
}

func TestRewriteCallsPermutesArgs(t *testing.T) {
	xVar := EVar{Name: "x", Typ: TInt{}}
	yVar := EVar{Name: "y", Typ: TInt{}}
	call := ECall{Func: "old", Args: []Exp{xVar, yVar}, Typ: TBool{}}

	// new arg i takes original arg perm[i]: swap args.
	rewritten := RewriteCalls(call, "old", "new", []int{1, 0}).(ECall)
	if rewritten.Func != "new" {
		t.Fatalf("expected func renamed to new, got %s", rewritten.Func)
	}
	if rewritten.Args[0] != Exp(yVar) || rewritten.Args[1] != Exp(xVar) {
		t.Fatalf("expected args swapped, got %v", rewritten.Args)
	}
}

// TestRewriteCallsPermutesArgsCyclic exercises a non-involutive (3-cycle)
// permutation, which a plain swap or identity test cannot distinguish from
// the formula's functional inverse.
func TestRewriteCallsPermutesArgsCyclic(t *testing.T) {
	aVar := EVar{Name: "a", Typ: TInt{}}
	bVar := EVar{Name: "b", Typ: TInt{}}
	cVar := EVar{Name: "c", Typ: TInt{}}
	call := ECall{Func: "old", Args: []Exp{aVar, bVar, cVar}, Typ: TBool{}}

	// perm = [1, 2, 0]: new arg 0 takes old arg 1, new arg 1 takes old arg
	// 2, new arg 2 takes old arg 0.
	rewritten := RewriteCalls(call, "old", "new", []int{1, 2, 0}).(ECall)
	want := []Exp{bVar, cVar, aVar}
	for i, w := range want {
		if rewritten.Args[i] != w {
			t.Fatalf("rewritten.Args[%d] = %v, want %v (full: %v)", i, rewritten.Args[i], w, rewritten.Args)
		}
	}
}

func TestSeqCollapsesNoOps(t *testing.T) {
	s := Seq(SNoOp{}, SNoOp{})
	if _, ok := s.(SNoOp); !ok {
		t.Fatalf("expected Seq of all no-ops to collapse to SNoOp, got %T", s)
	}

	decl := SDecl{Var: EVar{Name: "v", Typ: TInt{}}, Val: ELit{Value: int64(1), Typ: TInt{}}}
	s2 := Seq(SNoOp{}, decl, SNoOp{})
	if s2 != Stm(decl) {
		t.Fatalf("expected single non-noop statement to be returned directly, got %#v", s2)
	}
}
