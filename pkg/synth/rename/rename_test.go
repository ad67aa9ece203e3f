package rename

import (
	"testing"

	"github.com/izgzhen/synthctl/pkg/ast"
)

func TestRenameArgsOnlyTouchesSharedNames(t *testing.T) {
	q1 := &ast.Query{
		Name: "q1",
		Args: []ast.Arg{{Name: "x", Type: ast.TInt{}}},
		Ret:  ast.EVar{Name: "x", Typ: ast.TInt{}},
	}
	q2 := &ast.Query{
		Name: "q2",
		Args: []ast.Arg{{Name: "x", Type: ast.TInt{}}, {Name: "y", Type: ast.TInt{}}},
		Ret:  ast.EVar{Name: "x", Typ: ast.TInt{}},
	}

	out := RenameArgs([]*ast.Query{q1, q2})

	if out[0].Args[0].Name == "x" || out[1].Args[0].Name == "x" {
		t.Errorf("shared arg name %q should have been renamed in both queries", "x")
	}
	if out[0].Args[0].Name != out[0].Ret.(ast.EVar).Name {
		t.Errorf("renamed arg must also be substituted into Ret")
	}
	if out[1].Args[1].Name != "y" {
		t.Errorf("non-shared arg name %q should be left alone, got %q", "y", out[1].Args[1].Name)
	}
}

func TestRenameArgsLeavesUniqueNamesUntouched(t *testing.T) {
	q := &ast.Query{
		Name: "only",
		Args: []ast.Arg{{Name: "unique", Type: ast.TInt{}}},
		Ret:  ast.EVar{Name: "unique", Typ: ast.TInt{}},
	}
	out := RenameArgs([]*ast.Query{q})
	if out[0] != q {
		t.Errorf("query with no shared arg names should be returned unchanged")
	}
}

func TestUnpackRepresentationLiftsStateVarMarkers(t *testing.T) {
	stateExpr := ast.EVar{Name: "cv0", Typ: ast.TInt{}}
	arg := ast.EVar{Name: "n", Typ: ast.TInt{}}
	ret := ast.EEq{
		Lhs: ast.EStateVar{Arg: stateExpr},
		Rhs: arg,
	}

	bindings, unpacked := UnpackRepresentation(ret)

	if len(bindings) != 1 {
		t.Fatalf("expected 1 concrete binding, got %d", len(bindings))
	}
	if bindings[0].Meaning.Key() != stateExpr.Key() {
		t.Errorf("binding meaning = %s, want %s", bindings[0].Meaning.Key(), stateExpr.Key())
	}
	eq, ok := unpacked.(ast.EEq)
	if !ok {
		t.Fatalf("expected EEq, got %T", unpacked)
	}
	if eq.Lhs.Key() != bindings[0].Var.Key() {
		t.Errorf("unpacked Lhs should reference the fresh concrete var")
	}
	if eq.Rhs.Key() != arg.Key() {
		t.Errorf("unpacked Rhs should leave the argument untouched")
	}
}
