package collab

import (
	"testing"
	"time"

	"github.com/izgzhen/synthctl/pkg/ast"
)

func TestStarlarkCostModelDefaultScript(t *testing.T) {
	m, err := NewStarlarkCostModel(DefaultCostScript, time.Second)
	if err != nil {
		t.Fatalf("NewStarlarkCostModel: %v", err)
	}

	xs := ast.EVar{Name: "xs", Typ: ast.TBag{Elem: ast.TInt{}}}
	rep := []ast.CVarBinding{{Var: ast.EVar{Name: "xs", Typ: ast.TBag{Elem: ast.TInt{}}}, Meaning: xs}}
	ret := ast.EVar{Name: "y", Typ: ast.TInt{}}

	got, err := m.Cost(rep, ret)
	if err != nil {
		t.Fatalf("Cost: %v", err)
	}
	want := float64(ast.Size(xs) + ast.Size(ret))
	if got != want {
		t.Fatalf("Cost = %v, want %v", got, want)
	}
}

func TestStarlarkCostModelOrdersByScript(t *testing.T) {
	m, err := NewStarlarkCostModel(`
def cost(rep_size, ret_size, num_bindings):
    return num_bindings * 100 + ret_size
`, time.Second)
	if err != nil {
		t.Fatalf("NewStarlarkCostModel: %v", err)
	}

	cheap := []ast.CVarBinding{{Var: ast.EVar{Name: "a"}, Meaning: ast.ELit{Value: int64(1), Typ: ast.TInt{}}}}
	expensive := []ast.CVarBinding{
		{Var: ast.EVar{Name: "a"}, Meaning: ast.ELit{Value: int64(1), Typ: ast.TInt{}}},
		{Var: ast.EVar{Name: "b"}, Meaning: ast.ELit{Value: int64(2), Typ: ast.TInt{}}},
	}
	ret := ast.ELit{Value: int64(0), Typ: ast.TInt{}}

	cheapCost, err := m.Cost(cheap, ret)
	if err != nil {
		t.Fatalf("Cost(cheap): %v", err)
	}
	expensiveCost, err := m.Cost(expensive, ret)
	if err != nil {
		t.Fatalf("Cost(expensive): %v", err)
	}
	if cheapCost >= expensiveCost {
		t.Fatalf("expected cheap (%v) < expensive (%v)", cheapCost, expensiveCost)
	}
}

func TestNewStarlarkCostModelRejectsMissingCostFunction(t *testing.T) {
	_, err := NewStarlarkCostModel(`x = 1`, time.Second)
	if err == nil {
		t.Fatal("expected an error for a script with no cost function")
	}
}

func TestNewStarlarkCostModelRejectsSyntaxError(t *testing.T) {
	_, err := NewStarlarkCostModel(`def cost(:`, time.Second)
	if err == nil {
		t.Fatal("expected a compile error for invalid starlark syntax")
	}
}
