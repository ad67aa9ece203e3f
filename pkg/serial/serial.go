// Package serial encodes and decodes Specification values to and from JSON,
// and validates the decoded shape against a CUE schema before it is handed
// to the driver. Grounded on the teacher's pkg/config/cue_parser.go (a
// CUE-context-backed parser wrapping schema validation around a decoded Go
// value) and pkg/config/schemas.go (a SchemaRegistry of builtin CUE schema
// strings unified against encoded data). Exp, Stm, and Type are closed
// interface algebras with no JSON field tags of their own, so the wire
// format uses a tagged envelope ("kind" plus variant-specific fields)
// instead of struct tags.
package serial

import (
	"encoding/json"
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/izgzhen/synthctl/pkg/ast"
)

// Encode renders spec as indented JSON.
func Encode(spec *ast.Specification) ([]byte, error) {
	w, err := encodeSpecification(spec)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(w, "", "  ")
}

// Decode parses JSON produced by Encode back into a Specification, checking
// it against the builtin schema first.
func Decode(data []byte) (*ast.Specification, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var w wireSpecification
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode specification: %w", err)
	}
	return w.toAST()
}

// EncodeSpecification writes spec as indented JSON to w.
func EncodeSpecification(w io.Writer, spec *ast.Specification) error {
	data, err := Encode(spec)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// DecodeSpecification reads JSON from r and decodes it into a
// Specification, checking it against the builtin schema first.
func DecodeSpecification(r io.Reader) (*ast.Specification, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read specification: %w", err)
	}
	return Decode(data)
}

// ValidateSchema checks that data structurally conforms to the
// specification schema (required top-level fields, correct element
// shapes) before any interface-dispatch decoding is attempted.
func ValidateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(specificationSchema)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile specification schema: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode JSON for schema check: %w", err)
	}
	val := ctx.Encode(generic)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode data for schema check: %w", err)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("specification does not match schema: %w", err)
	}
	return nil
}

const specificationSchema = `
#Specification: {
	name:         string
	types?:       [...]
	externFuncs?: {...}
	stateVars?:   [...{name: string, type: _}]
	assumptions?: [...]
	queries!:     [...{name: string, vis: number, args?: [...], assumptions?: [...], ret: _, docstring?: string}]
	operations?:  [...{name: string, args?: [...], assumptions?: [...], body: _, docstring?: string}]
	header?:      string
	footer?:      string
	docstring?:   string
}
#Specification & _
`

// ---- Specification ----

type wireSpecification struct {
	Name        string            `json:"name"`
	Types       []wireType        `json:"types,omitempty"`
	ExternFuncs map[string]wireType `json:"externFuncs,omitempty"`
	StateVars   []wireStateVar    `json:"stateVars,omitempty"`
	Assumptions []wireExp         `json:"assumptions,omitempty"`
	Queries     []wireQuery       `json:"queries"`
	Operations  []wireOperation   `json:"operations,omitempty"`
	Header      string            `json:"header,omitempty"`
	Footer      string            `json:"footer,omitempty"`
	Docstring   string            `json:"docstring,omitempty"`
}

type wireStateVar struct {
	Name string   `json:"name"`
	Type wireType `json:"type"`
}

type wireArg struct {
	Name string   `json:"name"`
	Type wireType `json:"type"`
}

type wireQuery struct {
	Name        string    `json:"name"`
	Vis         int       `json:"vis"`
	Args        []wireArg `json:"args,omitempty"`
	Assumptions []wireExp `json:"assumptions,omitempty"`
	Ret         wireExp   `json:"ret"`
	Docstring   string    `json:"docstring,omitempty"`
}

type wireOperation struct {
	Name        string    `json:"name"`
	Args        []wireArg `json:"args,omitempty"`
	Assumptions []wireExp `json:"assumptions,omitempty"`
	Body        wireStm   `json:"body"`
	Docstring   string    `json:"docstring,omitempty"`
}

func encodeSpecification(spec *ast.Specification) (*wireSpecification, error) {
	w := &wireSpecification{
		Name:      spec.Name,
		Header:    spec.Header,
		Footer:    spec.Footer,
		Docstring: spec.Docstring,
	}
	for _, t := range spec.Types {
		wt, err := encodeType(t)
		if err != nil {
			return nil, err
		}
		w.Types = append(w.Types, wt)
	}
	if len(spec.ExternFuncs) > 0 {
		w.ExternFuncs = make(map[string]wireType, len(spec.ExternFuncs))
		for name, fn := range spec.ExternFuncs {
			wt, err := encodeType(fn)
			if err != nil {
				return nil, err
			}
			w.ExternFuncs[name] = wt
		}
	}
	for _, sv := range spec.StateVars {
		wt, err := encodeType(sv.Type)
		if err != nil {
			return nil, err
		}
		w.StateVars = append(w.StateVars, wireStateVar{Name: sv.Name, Type: wt})
	}
	for _, a := range spec.Assumptions {
		we, err := encodeExp(a)
		if err != nil {
			return nil, err
		}
		w.Assumptions = append(w.Assumptions, we)
	}
	for _, q := range spec.Queries {
		wq, err := encodeQuery(q)
		if err != nil {
			return nil, err
		}
		w.Queries = append(w.Queries, *wq)
	}
	for _, op := range spec.Operations {
		wop, err := encodeOperation(op)
		if err != nil {
			return nil, err
		}
		w.Operations = append(w.Operations, *wop)
	}
	return w, nil
}

func encodeQuery(q *ast.Query) (*wireQuery, error) {
	ret, err := encodeExp(q.Ret)
	if err != nil {
		return nil, err
	}
	wq := &wireQuery{Name: q.Name, Vis: int(q.Vis), Ret: ret, Docstring: q.Docstring}
	for _, a := range q.Args {
		wt, err := encodeType(a.Type)
		if err != nil {
			return nil, err
		}
		wq.Args = append(wq.Args, wireArg{Name: a.Name, Type: wt})
	}
	for _, a := range q.Assumptions {
		we, err := encodeExp(a)
		if err != nil {
			return nil, err
		}
		wq.Assumptions = append(wq.Assumptions, we)
	}
	return wq, nil
}

func encodeOperation(op *ast.Operation) (*wireOperation, error) {
	body, err := encodeStm(op.Body)
	if err != nil {
		return nil, err
	}
	wop := &wireOperation{Name: op.Name, Body: body, Docstring: op.Docstring}
	for _, a := range op.Args {
		wt, err := encodeType(a.Type)
		if err != nil {
			return nil, err
		}
		wop.Args = append(wop.Args, wireArg{Name: a.Name, Type: wt})
	}
	for _, a := range op.Assumptions {
		we, err := encodeExp(a)
		if err != nil {
			return nil, err
		}
		wop.Assumptions = append(wop.Assumptions, we)
	}
	return wop, nil
}

func (w *wireSpecification) toAST() (*ast.Specification, error) {
	spec := &ast.Specification{
		Name:      w.Name,
		Header:    w.Header,
		Footer:    w.Footer,
		Docstring: w.Docstring,
	}
	for _, wt := range w.Types {
		t, err := wt.toAST()
		if err != nil {
			return nil, err
		}
		spec.Types = append(spec.Types, t)
	}
	if len(w.ExternFuncs) > 0 {
		spec.ExternFuncs = make(map[string]ast.TFunc, len(w.ExternFuncs))
		for name, wt := range w.ExternFuncs {
			t, err := wt.toAST()
			if err != nil {
				return nil, err
			}
			fn, ok := t.(ast.TFunc)
			if !ok {
				return nil, fmt.Errorf("extern func %q: expected func type, got %T", name, t)
			}
			spec.ExternFuncs[name] = fn
		}
	}
	for _, wsv := range w.StateVars {
		t, err := wsv.Type.toAST()
		if err != nil {
			return nil, err
		}
		spec.StateVars = append(spec.StateVars, ast.StateVarDecl{Name: wsv.Name, Type: t})
	}
	for _, we := range w.Assumptions {
		e, err := we.toAST()
		if err != nil {
			return nil, err
		}
		spec.Assumptions = append(spec.Assumptions, e)
	}
	for _, wq := range w.Queries {
		q, err := wq.toAST()
		if err != nil {
			return nil, err
		}
		spec.Queries = append(spec.Queries, q)
	}
	for _, wop := range w.Operations {
		op, err := wop.toAST()
		if err != nil {
			return nil, err
		}
		spec.Operations = append(spec.Operations, op)
	}
	return spec, nil
}

func (wq *wireQuery) toAST() (*ast.Query, error) {
	ret, err := wq.Ret.toAST()
	if err != nil {
		return nil, err
	}
	q := &ast.Query{Name: wq.Name, Vis: ast.Visibility(wq.Vis), Ret: ret, Docstring: wq.Docstring}
	for _, wa := range wq.Args {
		t, err := wa.Type.toAST()
		if err != nil {
			return nil, err
		}
		q.Args = append(q.Args, ast.Arg{Name: wa.Name, Type: t})
	}
	for _, wa := range wq.Assumptions {
		e, err := wa.toAST()
		if err != nil {
			return nil, err
		}
		q.Assumptions = append(q.Assumptions, e)
	}
	return q, nil
}

func (wop *wireOperation) toAST() (*ast.Operation, error) {
	body, err := wop.Body.toAST()
	if err != nil {
		return nil, err
	}
	op := &ast.Operation{Name: wop.Name, Body: body, Docstring: wop.Docstring}
	for _, wa := range wop.Args {
		t, err := wa.Type.toAST()
		if err != nil {
			return nil, err
		}
		op.Args = append(op.Args, ast.Arg{Name: wa.Name, Type: t})
	}
	for _, wa := range wop.Assumptions {
		e, err := wa.toAST()
		if err != nil {
			return nil, err
		}
		op.Assumptions = append(op.Assumptions, e)
	}
	return op, nil
}

// ---- Type ----

type wireType struct {
	Kind  string      `json:"kind"`
	Name  string      `json:"name,omitempty"`
	Elem  *wireType   `json:"elem,omitempty"`
	Key   *wireType   `json:"key,omitempty"`
	Value *wireType   `json:"value,omitempty"`
	Fields []wireField `json:"fields,omitempty"`
	Args  []wireType  `json:"args,omitempty"`
	Ret   *wireType   `json:"ret,omitempty"`
}

type wireField struct {
	Name string   `json:"name"`
	Type wireType `json:"type"`
}

func encodeType(t ast.Type) (wireType, error) {
	switch t := t.(type) {
	case ast.TBool:
		return wireType{Kind: "bool"}, nil
	case ast.TInt:
		return wireType{Kind: "int"}, nil
	case ast.THandle:
		elem, err := encodeType(t.ValueType)
		if err != nil {
			return wireType{}, err
		}
		return wireType{Kind: "handle", Name: t.Name, Value: &elem}, nil
	case ast.TBag:
		elem, err := encodeType(t.Elem)
		if err != nil {
			return wireType{}, err
		}
		return wireType{Kind: "bag", Elem: &elem}, nil
	case ast.TSet:
		elem, err := encodeType(t.Elem)
		if err != nil {
			return wireType{}, err
		}
		return wireType{Kind: "set", Elem: &elem}, nil
	case ast.TMap:
		k, err := encodeType(t.Key_)
		if err != nil {
			return wireType{}, err
		}
		v, err := encodeType(t.Value)
		if err != nil {
			return wireType{}, err
		}
		return wireType{Kind: "map", Key: &k, Value: &v}, nil
	case ast.TRecord:
		w := wireType{Kind: "record"}
		for _, f := range t.Fields {
			wt, err := encodeType(f.Type)
			if err != nil {
				return wireType{}, err
			}
			w.Fields = append(w.Fields, wireField{Name: f.Name, Type: wt})
		}
		return w, nil
	case ast.TFunc:
		w := wireType{Kind: "func"}
		for _, a := range t.Args {
			wa, err := encodeType(a)
			if err != nil {
				return wireType{}, err
			}
			w.Args = append(w.Args, wa)
		}
		ret, err := encodeType(t.Ret)
		if err != nil {
			return wireType{}, err
		}
		w.Ret = &ret
		return w, nil
	default:
		return wireType{}, fmt.Errorf("encode type: unhandled %T", t)
	}
}

func (w wireType) toAST() (ast.Type, error) {
	switch w.Kind {
	case "bool":
		return ast.TBool{}, nil
	case "int":
		return ast.TInt{}, nil
	case "handle":
		if w.Value == nil {
			return nil, fmt.Errorf("handle type %q missing value type", w.Name)
		}
		vt, err := w.Value.toAST()
		if err != nil {
			return nil, err
		}
		return ast.THandle{Name: w.Name, ValueType: vt}, nil
	case "bag":
		if w.Elem == nil {
			return nil, fmt.Errorf("bag type missing elem")
		}
		et, err := w.Elem.toAST()
		if err != nil {
			return nil, err
		}
		return ast.TBag{Elem: et}, nil
	case "set":
		if w.Elem == nil {
			return nil, fmt.Errorf("set type missing elem")
		}
		et, err := w.Elem.toAST()
		if err != nil {
			return nil, err
		}
		return ast.TSet{Elem: et}, nil
	case "map":
		if w.Key == nil || w.Value == nil {
			return nil, fmt.Errorf("map type missing key or value")
		}
		kt, err := w.Key.toAST()
		if err != nil {
			return nil, err
		}
		vt, err := w.Value.toAST()
		if err != nil {
			return nil, err
		}
		return ast.TMap{Key_: kt, Value: vt}, nil
	case "record":
		rec := ast.TRecord{}
		for _, wf := range w.Fields {
			ft, err := wf.Type.toAST()
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, ast.RecordField{Name: wf.Name, Type: ft})
		}
		return rec, nil
	case "func":
		fn := ast.TFunc{}
		for _, wa := range w.Args {
			at, err := wa.toAST()
			if err != nil {
				return nil, err
			}
			fn.Args = append(fn.Args, at)
		}
		if w.Ret == nil {
			return nil, fmt.Errorf("func type missing ret")
		}
		rt, err := w.Ret.toAST()
		if err != nil {
			return nil, err
		}
		fn.Ret = rt
		return fn, nil
	default:
		return nil, fmt.Errorf("decode type: unhandled kind %q", w.Kind)
	}
}

// ---- Exp ----

type wireExp struct {
	Kind  string     `json:"kind"`
	Name  string     `json:"name,omitempty"`
	Value interface{} `json:"value,omitempty"`
	Type  *wireType  `json:"type,omitempty"`
	Func  string     `json:"func,omitempty"`
	Args  []wireExp  `json:"args,omitempty"`
	Lhs   *wireExp   `json:"lhs,omitempty"`
	Rhs   *wireExp   `json:"rhs,omitempty"`
	Clauses []wireExp `json:"clauses,omitempty"`
	Arg   *wireExp   `json:"arg,omitempty"`
	Bag   *wireExp   `json:"bag,omitempty"`
	Pred  *wireLambda `json:"pred,omitempty"`
	Fun   *wireLambda `json:"fun,omitempty"`
	Op    string     `json:"op,omitempty"`
	Elem  *wireExp   `json:"elem,omitempty"`
	Rec   *wireExp   `json:"rec,omitempty"`
	Field string     `json:"field,omitempty"`
	Map   *wireExp   `json:"map,omitempty"`
	Key_  *wireExp   `json:"key,omitempty"`
}

type wireLambda struct {
	Arg  wireEVar `json:"argVar"`
	Body wireExp  `json:"body"`
}

type wireEVar struct {
	Name string   `json:"name"`
	Type wireType `json:"type"`
}

var uopNames = map[ast.UOp]string{
	ast.UOpDistinct: "distinct",
	ast.UOpLen:      "len",
	ast.UOpSum:      "sum",
	ast.UOpMin:      "min",
	ast.UOpMax:      "max",
	ast.UOpEmpty:    "empty",
}

var uopByName = func() map[string]ast.UOp {
	m := make(map[string]ast.UOp, len(uopNames))
	for op, name := range uopNames {
		m[name] = op
	}
	return m
}()

func encodeEVar(v ast.EVar) (wireEVar, error) {
	wt, err := encodeType(v.Typ)
	if err != nil {
		return wireEVar{}, err
	}
	return wireEVar{Name: v.Name, Type: wt}, nil
}

func (w wireEVar) toAST() (ast.EVar, error) {
	t, err := w.Type.toAST()
	if err != nil {
		return ast.EVar{}, err
	}
	return ast.EVar{Name: w.Name, Typ: t}, nil
}

func encodeLambda(l *ast.ELambda) (*wireLambda, error) {
	if l == nil {
		return nil, nil
	}
	wv, err := encodeEVar(l.Arg)
	if err != nil {
		return nil, err
	}
	wb, err := encodeExp(l.Body)
	if err != nil {
		return nil, err
	}
	return &wireLambda{Arg: wv, Body: wb}, nil
}

func (w *wireLambda) toAST() (*ast.ELambda, error) {
	if w == nil {
		return nil, nil
	}
	v, err := w.Arg.toAST()
	if err != nil {
		return nil, err
	}
	b, err := w.Body.toAST()
	if err != nil {
		return nil, err
	}
	return &ast.ELambda{Arg: v, Body: b}, nil
}

func encodeExp(e ast.Exp) (wireExp, error) {
	switch e := e.(type) {
	case ast.EVar:
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "var", Name: e.Name, Type: &wt}, nil
	case ast.ELit:
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "lit", Value: e.Value, Type: &wt}, nil
	case ast.ECall:
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		we := wireExp{Kind: "call", Func: e.Func, Type: &wt}
		for _, a := range e.Args {
			wa, err := encodeExp(a)
			if err != nil {
				return wireExp{}, err
			}
			we.Args = append(we.Args, wa)
		}
		return we, nil
	case ast.EEq:
		lhs, err := encodeExp(e.Lhs)
		if err != nil {
			return wireExp{}, err
		}
		rhs, err := encodeExp(e.Rhs)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "eq", Lhs: &lhs, Rhs: &rhs}, nil
	case ast.EAll:
		we := wireExp{Kind: "all"}
		for _, c := range e.Clauses {
			wc, err := encodeExp(c)
			if err != nil {
				return wireExp{}, err
			}
			we.Clauses = append(we.Clauses, wc)
		}
		return we, nil
	case ast.ENot:
		arg, err := encodeExp(e.Arg)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "not", Arg: &arg}, nil
	case ast.EImplies:
		lhs, err := encodeExp(e.Lhs)
		if err != nil {
			return wireExp{}, err
		}
		rhs, err := encodeExp(e.Rhs)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "implies", Lhs: &lhs, Rhs: &rhs}, nil
	case ast.EFilter:
		bag, err := encodeExp(e.Bag)
		if err != nil {
			return wireExp{}, err
		}
		pred, err := encodeLambda(e.Pred)
		if err != nil {
			return wireExp{}, err
		}
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "filter", Bag: &bag, Pred: pred, Type: &wt}, nil
	case ast.EMap:
		bag, err := encodeExp(e.Bag)
		if err != nil {
			return wireExp{}, err
		}
		fun, err := encodeLambda(e.Fun)
		if err != nil {
			return wireExp{}, err
		}
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "map", Bag: &bag, Fun: fun, Type: &wt}, nil
	case ast.EUnaryOp:
		arg, err := encodeExp(e.Arg)
		if err != nil {
			return wireExp{}, err
		}
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "unaryop", Op: uopNames[e.Op], Arg: &arg, Type: &wt}, nil
	case ast.EIn:
		elem, err := encodeExp(e.Elem)
		if err != nil {
			return wireExp{}, err
		}
		bag, err := encodeExp(e.Bag)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "in", Elem: &elem, Bag: &bag}, nil
	case ast.EGetField:
		rec, err := encodeExp(e.Rec)
		if err != nil {
			return wireExp{}, err
		}
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "getfield", Rec: &rec, Field: e.Field, Type: &wt}, nil
	case ast.EMakeMap2:
		bag, err := encodeExp(e.Bag)
		if err != nil {
			return wireExp{}, err
		}
		fun, err := encodeLambda(e.Fun)
		if err != nil {
			return wireExp{}, err
		}
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "makemap2", Bag: &bag, Fun: fun, Type: &wt}, nil
	case ast.EMapGet:
		m, err := encodeExp(e.Map)
		if err != nil {
			return wireExp{}, err
		}
		k, err := encodeExp(e.Key_)
		if err != nil {
			return wireExp{}, err
		}
		wt, err := encodeType(e.Typ)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "mapget", Map: &m, Key_: &k, Type: &wt}, nil
	case ast.EStateVar:
		arg, err := encodeExp(e.Arg)
		if err != nil {
			return wireExp{}, err
		}
		return wireExp{Kind: "statevar", Arg: &arg}, nil
	default:
		return wireExp{}, fmt.Errorf("encode exp: unhandled %T", e)
	}
}

func (w wireExp) toAST() (ast.Exp, error) {
	switch w.Kind {
	case "var":
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EVar{Name: w.Name, Typ: t}, nil
	case "lit":
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.ELit{Value: decodeLitValue(w.Value, t), Typ: t}, nil
	case "call":
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		ce := ast.ECall{Func: w.Func, Typ: t}
		for _, wa := range w.Args {
			a, err := wa.toAST()
			if err != nil {
				return nil, err
			}
			ce.Args = append(ce.Args, a)
		}
		return ce, nil
	case "eq":
		lhs, err := w.Lhs.toAST()
		if err != nil {
			return nil, err
		}
		rhs, err := w.Rhs.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EEq{Lhs: lhs, Rhs: rhs}, nil
	case "all":
		ae := ast.EAll{}
		for _, wc := range w.Clauses {
			c, err := wc.toAST()
			if err != nil {
				return nil, err
			}
			ae.Clauses = append(ae.Clauses, c)
		}
		return ae, nil
	case "not":
		arg, err := w.Arg.toAST()
		if err != nil {
			return nil, err
		}
		return ast.ENot{Arg: arg}, nil
	case "implies":
		lhs, err := w.Lhs.toAST()
		if err != nil {
			return nil, err
		}
		rhs, err := w.Rhs.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EImplies{Lhs: lhs, Rhs: rhs}, nil
	case "filter":
		bag, err := w.Bag.toAST()
		if err != nil {
			return nil, err
		}
		pred, err := w.Pred.toAST()
		if err != nil {
			return nil, err
		}
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EFilter{Bag: bag, Pred: pred, Typ: t}, nil
	case "map":
		bag, err := w.Bag.toAST()
		if err != nil {
			return nil, err
		}
		fun, err := w.Fun.toAST()
		if err != nil {
			return nil, err
		}
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EMap{Bag: bag, Fun: fun, Typ: t}, nil
	case "unaryop":
		op, ok := uopByName[w.Op]
		if !ok {
			return nil, fmt.Errorf("unknown unary op %q", w.Op)
		}
		arg, err := w.Arg.toAST()
		if err != nil {
			return nil, err
		}
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EUnaryOp{Op: op, Arg: arg, Typ: t}, nil
	case "in":
		elem, err := w.Elem.toAST()
		if err != nil {
			return nil, err
		}
		bag, err := w.Bag.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EIn{Elem: elem, Bag: bag}, nil
	case "getfield":
		rec, err := w.Rec.toAST()
		if err != nil {
			return nil, err
		}
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EGetField{Rec: rec, Field: w.Field, Typ: t}, nil
	case "makemap2":
		bag, err := w.Bag.toAST()
		if err != nil {
			return nil, err
		}
		fun, err := w.Fun.toAST()
		if err != nil {
			return nil, err
		}
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EMakeMap2{Bag: bag, Fun: fun, Typ: t}, nil
	case "mapget":
		m, err := w.Map.toAST()
		if err != nil {
			return nil, err
		}
		k, err := w.Key_.toAST()
		if err != nil {
			return nil, err
		}
		t, err := w.Type.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EMapGet{Map: m, Key_: k, Typ: t}, nil
	case "statevar":
		arg, err := w.Arg.toAST()
		if err != nil {
			return nil, err
		}
		return ast.EStateVar{Arg: arg}, nil
	default:
		return nil, fmt.Errorf("decode exp: unhandled kind %q", w.Kind)
	}
}

// decodeLitValue converts a JSON-decoded interface{} (bool, float64, or nil)
// back to the bool/int64/nil triple ELit.Value expects, using t to
// disambiguate numeric literals from booleans.
func decodeLitValue(v interface{}, t ast.Type) interface{} {
	if v == nil {
		return nil
	}
	switch t.(type) {
	case ast.TBool:
		b, _ := v.(bool)
		return b
	case ast.TInt:
		f, _ := v.(float64)
		return int64(f)
	default:
		return nil
	}
}

// ---- Stm ----

type wireStm struct {
	Kind    string    `json:"kind"`
	S1      *wireStm  `json:"s1,omitempty"`
	S2      *wireStm  `json:"s2,omitempty"`
	Var     *wireEVar `json:"var,omitempty"`
	Val     *wireExp  `json:"val,omitempty"`
	Lhs     *wireExp  `json:"lhs,omitempty"`
	Rhs     *wireExp  `json:"rhs,omitempty"`
	Cond    *wireExp  `json:"cond,omitempty"`
	Then    *wireStm  `json:"then,omitempty"`
	Else    *wireStm  `json:"else,omitempty"`
	LoopVar *wireEVar `json:"loopVar,omitempty"`
	Iter    *wireExp  `json:"iter,omitempty"`
	Body    *wireStm  `json:"body,omitempty"`
	Target  *wireExp  `json:"target,omitempty"`
	Func    string    `json:"func,omitempty"`
	Args    []wireExp `json:"args,omitempty"`
	Map     *wireExp  `json:"map,omitempty"`
	Key_    *wireExp  `json:"key,omitempty"`
	Value   *wireExp  `json:"value,omitempty"`
	ValVar  *wireEVar `json:"valVar,omitempty"`
	Change  *wireStm  `json:"change,omitempty"`
}

func encodeStm(s ast.Stm) (wireStm, error) {
	switch s := s.(type) {
	case ast.SNoOp:
		return wireStm{Kind: "noop"}, nil
	case ast.SSeq:
		s1, err := encodeStm(s.S1)
		if err != nil {
			return wireStm{}, err
		}
		s2, err := encodeStm(s.S2)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "seq", S1: &s1, S2: &s2}, nil
	case ast.SDecl:
		v, err := encodeEVar(s.Var)
		if err != nil {
			return wireStm{}, err
		}
		val, err := encodeExp(s.Val)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "decl", Var: &v, Val: &val}, nil
	case ast.SAssign:
		lhs, err := encodeExp(s.Lhs)
		if err != nil {
			return wireStm{}, err
		}
		rhs, err := encodeExp(s.Rhs)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "assign", Lhs: &lhs, Rhs: &rhs}, nil
	case ast.SIf:
		cond, err := encodeExp(s.Cond)
		if err != nil {
			return wireStm{}, err
		}
		then, err := encodeStm(s.ThenBranch)
		if err != nil {
			return wireStm{}, err
		}
		els, err := encodeStm(s.ElseBranch)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "if", Cond: &cond, Then: &then, Else: &els}, nil
	case ast.SForEach:
		lv, err := encodeEVar(s.LoopVar)
		if err != nil {
			return wireStm{}, err
		}
		iter, err := encodeExp(s.Iter)
		if err != nil {
			return wireStm{}, err
		}
		body, err := encodeStm(s.Body)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "foreach", LoopVar: &lv, Iter: &iter, Body: &body}, nil
	case ast.SCall:
		target, err := encodeExp(s.Target)
		if err != nil {
			return wireStm{}, err
		}
		ws := wireStm{Kind: "call", Target: &target, Func: s.Func}
		for _, a := range s.Args {
			wa, err := encodeExp(a)
			if err != nil {
				return wireStm{}, err
			}
			ws.Args = append(ws.Args, wa)
		}
		return ws, nil
	case ast.SMapPut:
		m, err := encodeExp(s.Map)
		if err != nil {
			return wireStm{}, err
		}
		k, err := encodeExp(s.Key_)
		if err != nil {
			return wireStm{}, err
		}
		v, err := encodeExp(s.Value)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "mapput", Map: &m, Key_: &k, Value: &v}, nil
	case ast.SMapDel:
		m, err := encodeExp(s.Map)
		if err != nil {
			return wireStm{}, err
		}
		k, err := encodeExp(s.Key_)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "mapdel", Map: &m, Key_: &k}, nil
	case ast.SMapUpdate:
		m, err := encodeExp(s.Map)
		if err != nil {
			return wireStm{}, err
		}
		k, err := encodeExp(s.Key_)
		if err != nil {
			return wireStm{}, err
		}
		vv, err := encodeEVar(s.ValVar)
		if err != nil {
			return wireStm{}, err
		}
		change, err := encodeStm(s.Change)
		if err != nil {
			return wireStm{}, err
		}
		return wireStm{Kind: "mapupdate", Map: &m, Key_: &k, ValVar: &vv, Change: &change}, nil
	default:
		return wireStm{}, fmt.Errorf("encode stm: unhandled %T", s)
	}
}

func (w wireStm) toAST() (ast.Stm, error) {
	switch w.Kind {
	case "noop":
		return ast.SNoOp{}, nil
	case "seq":
		s1, err := w.S1.toAST()
		if err != nil {
			return nil, err
		}
		s2, err := w.S2.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SSeq{S1: s1, S2: s2}, nil
	case "decl":
		v, err := w.Var.toAST()
		if err != nil {
			return nil, err
		}
		val, err := w.Val.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SDecl{Var: v, Val: val}, nil
	case "assign":
		lhs, err := w.Lhs.toAST()
		if err != nil {
			return nil, err
		}
		rhs, err := w.Rhs.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SAssign{Lhs: lhs, Rhs: rhs}, nil
	case "if":
		cond, err := w.Cond.toAST()
		if err != nil {
			return nil, err
		}
		then, err := w.Then.toAST()
		if err != nil {
			return nil, err
		}
		els, err := w.Else.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SIf{Cond: cond, ThenBranch: then, ElseBranch: els}, nil
	case "foreach":
		lv, err := w.LoopVar.toAST()
		if err != nil {
			return nil, err
		}
		iter, err := w.Iter.toAST()
		if err != nil {
			return nil, err
		}
		body, err := w.Body.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SForEach{LoopVar: lv, Iter: iter, Body: body}, nil
	case "call":
		target, err := w.Target.toAST()
		if err != nil {
			return nil, err
		}
		cs := ast.SCall{Target: target, Func: w.Func}
		for _, wa := range w.Args {
			a, err := wa.toAST()
			if err != nil {
				return nil, err
			}
			cs.Args = append(cs.Args, a)
		}
		return cs, nil
	case "mapput":
		m, err := w.Map.toAST()
		if err != nil {
			return nil, err
		}
		k, err := w.Key_.toAST()
		if err != nil {
			return nil, err
		}
		v, err := w.Value.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SMapPut{Map: m, Key_: k, Value: v}, nil
	case "mapdel":
		m, err := w.Map.toAST()
		if err != nil {
			return nil, err
		}
		k, err := w.Key_.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SMapDel{Map: m, Key_: k}, nil
	case "mapupdate":
		m, err := w.Map.toAST()
		if err != nil {
			return nil, err
		}
		k, err := w.Key_.toAST()
		if err != nil {
			return nil, err
		}
		vv, err := w.ValVar.toAST()
		if err != nil {
			return nil, err
		}
		change, err := w.Change.toAST()
		if err != nil {
			return nil, err
		}
		return ast.SMapUpdate{Map: m, Key_: k, ValVar: vv, Change: change}, nil
	default:
		return nil, fmt.Errorf("decode stm: unhandled kind %q", w.Kind)
	}
}
