package serial

import (
	"reflect"
	"testing"

	"github.com/izgzhen/synthctl/pkg/ast"
)

func exampleSpec() *ast.Specification {
	xs := ast.EVar{Name: "xs", Typ: ast.TBag{Elem: ast.TInt{}}}
	y := ast.EVar{Name: "y", Typ: ast.TInt{}}
	x := ast.EVar{Name: "x", Typ: ast.TInt{}}

	contains := &ast.Query{
		Name: "contains",
		Vis:  ast.Public,
		Args: []ast.Arg{{Name: "y", Type: ast.TInt{}}},
		Ret:  ast.EIn{Elem: y, Bag: ast.EUnaryOp{Op: ast.UOpDistinct, Arg: xs, Typ: ast.TSet{Elem: ast.TInt{}}}},
	}

	add := &ast.Operation{
		Name: "add",
		Args: []ast.Arg{{Name: "x", Type: ast.TInt{}}},
		Body: ast.SCall{Target: xs, Func: "insert", Args: []ast.Exp{x}},
	}

	return &ast.Specification{
		Name:      "Membership",
		StateVars: []ast.StateVarDecl{{Name: "xs", Type: ast.TBag{Elem: ast.TInt{}}}},
		Assumptions: []ast.Exp{
			ast.ENot{Arg: ast.EUnaryOp{Op: ast.UOpEmpty, Arg: xs, Typ: ast.TBool{}}},
		},
		Queries:    []*ast.Query{contains},
		Operations: []*ast.Operation{add},
		Docstring:  "a bag that tracks membership",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	spec := exampleSpec()

	data, err := Encode(spec)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !reflect.DeepEqual(spec, got) {
		t.Fatalf("round trip mismatch:\nwant %#v\ngot  %#v", spec, got)
	}
}

func TestDecodeRejectsMissingQueries(t *testing.T) {
	_, err := Decode([]byte(`{"name": "Broken"}`))
	if err == nil {
		t.Fatal("expected schema validation error for a specification with no queries field")
	}
}

func TestDecodeRejectsUnknownExpKind(t *testing.T) {
	data := []byte(`{
		"name": "Broken",
		"queries": [{"name": "q", "vis": 0, "ret": {"kind": "nonsense"}}]
	}`)
	_, err := Decode(data)
	if err == nil {
		t.Fatal("expected an error decoding an unrecognized exp kind")
	}
}

func TestTypeRoundTrip(t *testing.T) {
	types := []ast.Type{
		ast.TBool{},
		ast.TInt{},
		ast.TBag{Elem: ast.TInt{}},
		ast.TSet{Elem: ast.THandle{Name: "Node", ValueType: ast.TInt{}}},
		ast.TMap{Key_: ast.TInt{}, Value: ast.TBool{}},
		ast.TRecord{Fields: []ast.RecordField{{Name: "a", Type: ast.TInt{}}, {Name: "b", Type: ast.TBool{}}}},
		ast.TFunc{Args: []ast.Type{ast.TInt{}, ast.TInt{}}, Ret: ast.TBool{}},
	}
	for _, typ := range types {
		w, err := encodeType(typ)
		if err != nil {
			t.Fatalf("encodeType(%v): %v", typ, err)
		}
		back, err := w.toAST()
		if err != nil {
			t.Fatalf("decode type: %v", err)
		}
		if back.Key() != typ.Key() {
			t.Errorf("type round trip: want key %q, got %q", typ.Key(), back.Key())
		}
	}
}
