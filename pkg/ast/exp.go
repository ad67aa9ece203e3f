package ast

import (
	"fmt"
	"sort"
	"strings"
)

// Exp is an algebraic expression tree node. Every node carries a concrete
// Type. Expressions are immutable; substitution and rewriting always
// produce fresh trees rather than mutating in place.
type Exp interface {
	isExp()
	// Type returns the static type of this expression.
	Type() Type
	// Key returns a canonical string encoding of this expression, used for
	// structural-equality checks (e.g. the oracle's alpha-equivalence
	// fallback and the handle-update planner's map keys). Key does not
	// depend on pointer identity.
	Key() string
}

// EVar is a variable reference.
type EVar struct {
	Name string
	Typ  Type
}

func (EVar) isExp()        {}
func (e EVar) Type() Type  { return e.Typ }
func (e EVar) Key() string { return "var:" + e.Name }

// ELit is a literal value. Value holds a bool, int64, or nil (for the empty
// bag/set/map of Typ).
type ELit struct {
	Value interface{}
	Typ   Type
}

func (ELit) isExp()       {}
func (e ELit) Type() Type { return e.Typ }
func (e ELit) Key() string {
	return fmt.Sprintf("lit:%v:%s", e.Value, e.Typ.Key())
}

// ECall invokes a named query or extern function with the given arguments.
type ECall struct {
	Func string
	Args []Exp
	Typ  Type
}

func (ECall) isExp()       {}
func (e ECall) Type() Type { return e.Typ }
func (e ECall) Key() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.Key()
	}
	return fmt.Sprintf("call:%s(%s)", e.Func, strings.Join(parts, ","))
}

// EEq is structural equality between two expressions of the same type.
type EEq struct {
	Lhs, Rhs Exp
}

func (EEq) isExp()        {}
func (EEq) Type() Type    { return TBool{} }
func (e EEq) Key() string { return fmt.Sprintf("eq(%s,%s)", e.Lhs.Key(), e.Rhs.Key()) }

// EAll is the conjunction of zero or more boolean expressions (true when
// empty).
type EAll struct {
	Clauses []Exp
}

func (EAll) isExp()     {}
func (EAll) Type() Type { return TBool{} }
func (e EAll) Key() string {
	parts := make([]string, len(e.Clauses))
	for i, c := range e.Clauses {
		parts[i] = c.Key()
	}
	sort.Strings(parts)
	return "all(" + strings.Join(parts, ",") + ")"
}

// ENot is boolean negation.
type ENot struct{ Arg Exp }

func (ENot) isExp()        {}
func (ENot) Type() Type    { return TBool{} }
func (e ENot) Key() string { return "not(" + e.Arg.Key() + ")" }

// EImplies is logical implication.
type EImplies struct{ Lhs, Rhs Exp }

func (EImplies) isExp()     {}
func (EImplies) Type() Type { return TBool{} }
func (e EImplies) Key() string {
	return fmt.Sprintf("implies(%s,%s)", e.Lhs.Key(), e.Rhs.Key())
}

// EFilter keeps elements of Bag for which Pred holds.
type EFilter struct {
	Bag  Exp
	Pred *ELambda
	Typ  Type
}

func (EFilter) isExp()       {}
func (e EFilter) Type() Type { return e.Typ }
func (e EFilter) Key() string {
	return fmt.Sprintf("filter(%s,%s)", e.Bag.Key(), e.Pred.Key())
}

// EMap applies Fun to every element of Bag.
type EMap struct {
	Bag Exp
	Fun *ELambda
	Typ Type
}

func (EMap) isExp()       {}
func (e EMap) Type() Type { return e.Typ }
func (e EMap) Key() string {
	return fmt.Sprintf("map(%s,%s)", e.Bag.Key(), e.Fun.Key())
}

// UOp is a distinguished class of unary operators.
type UOp int

const (
	// UOpDistinct removes duplicate elements from a bag, producing a set.
	UOpDistinct UOp = iota
	// UOpLen returns the cardinality of a bag or set.
	UOpLen
	// UOpSum sums a bag or set of integers.
	UOpSum
	// UOpMin returns the minimum of a nonempty bag or set of integers.
	UOpMin
	// UOpMax returns the maximum of a nonempty bag or set of integers.
	UOpMax
	// UOpEmpty tests whether a bag or set has no elements.
	UOpEmpty
)

func (u UOp) String() string {
	switch u {
	case UOpDistinct:
		return "distinct"
	case UOpLen:
		return "len"
	case UOpSum:
		return "sum"
	case UOpMin:
		return "min"
	case UOpMax:
		return "max"
	case UOpEmpty:
		return "empty"
	default:
		return "unknown-uop"
	}
}

// EUnaryOp applies a UOp to Arg.
type EUnaryOp struct {
	Op  UOp
	Arg Exp
	Typ Type
}

func (EUnaryOp) isExp()       {}
func (e EUnaryOp) Type() Type { return e.Typ }
func (e EUnaryOp) Key() string {
	return fmt.Sprintf("%s(%s)", e.Op, e.Arg.Key())
}

// EIn tests bag/set membership.
type EIn struct {
	Elem, Bag Exp
}

func (EIn) isExp()     {}
func (EIn) Type() Type { return TBool{} }
func (e EIn) Key() string {
	return fmt.Sprintf("in(%s,%s)", e.Elem.Key(), e.Bag.Key())
}

// EGetField projects a named field out of a record-typed expression.
type EGetField struct {
	Rec   Exp
	Field string
	Typ   Type
}

func (EGetField) isExp()       {}
func (e EGetField) Type() Type { return e.Typ }
func (e EGetField) Key() string {
	return fmt.Sprintf("getfield(%s,%s)", e.Rec.Key(), e.Field)
}

// ELambda is a single-argument anonymous function used by EFilter, EMap, and
// the handle-update planner. It is not itself an Exp (it has no runtime
// type of its own outside of its binder), but it participates in
// free-variable computation and substitution like one.
type ELambda struct {
	Arg  EVar
	Body Exp
}

// Key returns a canonical encoding of the lambda, alpha-renaming the bound
// variable to the lowest-numbered placeholder "$k" not otherwise free in the
// body, so that two lambdas differing only in bound-variable name compare
// equal while nested binders keep distinct placeholders.
func (l *ELambda) Key() string {
	fv := FreeVars(l.Body)
	name := ""
	for k := 0; ; k++ {
		name = fmt.Sprintf("$%d", k)
		if _, taken := fv[name]; !taken || name == l.Arg.Name {
			break
		}
	}
	renamed := Subst(l.Body, map[string]Exp{l.Arg.Name: EVar{Name: name, Typ: l.Arg.Typ}})
	return fmt.Sprintf("lambda(%s:%s)->%s", name, l.Arg.Typ.Key(), renamed.Key())
}

// EMakeMap2 builds a map from Bag by applying Fun to each element to obtain
// its value; keys are the elements themselves.
type EMakeMap2 struct {
	Bag Exp
	Fun *ELambda
	Typ Type
}

func (EMakeMap2) isExp()       {}
func (e EMakeMap2) Type() Type { return e.Typ }
func (e EMakeMap2) Key() string {
	return fmt.Sprintf("makemap2(%s,%s)", e.Bag.Key(), e.Fun.Key())
}

// EMapGet looks up Key in Map.
type EMapGet struct {
	Map, Key_ Exp
	Typ       Type
}

func (EMapGet) isExp()       {}
func (e EMapGet) Type() Type { return e.Typ }
func (e EMapGet) Key() string {
	return fmt.Sprintf("mapget(%s,%s)", e.Map.Key(), e.Key_.Key())
}

// EStateVar marks Arg as evaluable from concrete state alone, so that the
// well-formedness repairer and simplifier do not re-derive it from the
// abstract state.
type EStateVar struct{ Arg Exp }

func (EStateVar) isExp()       {}
func (e EStateVar) Type() Type { return e.Arg.Type() }
func (e EStateVar) Key() string { return "statevar(" + e.Arg.Key() + ")" }

// StripStateVar removes a top-level EStateVar marker, if present.
func StripStateVar(e Exp) Exp {
	if sv, ok := e.(EStateVar); ok {
		return sv.Arg
	}
	return e
}
