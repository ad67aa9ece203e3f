// Package rename implements two small AST-shaping passes that run before
// and during initial query installation: RenameArgs (spec.md 4.2's
// requirement that argument names be globally unique before any subquery
// can safely reuse them) and UnpackRepresentation (turning a
// well-formedness-repaired return expression into an initial, unoptimized
// concrete representation: one fresh concrete variable per maximal
// state-computable subexpression).
package rename

import (
	"github.com/izgzhen/synthctl/pkg/ast"
)

// RenameArgs returns a copy of queries in which every argument name used
// by more than one query has been replaced, everywhere it occurs, by a
// fresh name — so that later stages (subquery introduction, the
// equivalence oracle) never have to reason about two unrelated queries
// that happen to share an argument name. Grounded on cozy's
// synthesis/high_level_interface.py:rename_args.
func RenameArgs(queries []*ast.Query) []*ast.Query {
	hist := make(map[string]int)
	for _, q := range queries {
		for _, a := range q.Args {
			hist[a.Name]++
		}
	}

	out := make([]*ast.Query, len(queries))
	for i, q := range queries {
		remap := make(map[string]ast.Exp)
		for _, a := range q.Args {
			if hist[a.Name] > 1 {
				remap[a.Name] = ast.EVar{Name: ast.FreshName(a.Name), Typ: a.Type}
			}
		}
		if len(remap) == 0 {
			out[i] = q
			continue
		}

		newArgs := make([]ast.Arg, len(q.Args))
		for j, a := range q.Args {
			if repl, ok := remap[a.Name]; ok {
				newArgs[j] = ast.Arg{Name: repl.(ast.EVar).Name, Type: a.Type}
			} else {
				newArgs[j] = a
			}
		}

		newAssumptions := make([]ast.Exp, len(q.Assumptions))
		for j, a := range q.Assumptions {
			newAssumptions[j] = ast.Subst(a, remap)
		}

		renamed := q.Copy()
		renamed.Args = newArgs
		renamed.Assumptions = newAssumptions
		renamed.Ret = ast.Subst(q.Ret, remap)
		out[i] = renamed
	}
	return out
}

// unpacker walks a repaired return expression and lifts every maximal
// EStateVar-marked subexpression out into a fresh concrete variable,
// leaving the surrounding (necessarily argument-only) computation in
// place.
type unpacker struct {
	bindings []ast.CVarBinding
}

// UnpackRepresentation turns e (the well-formedness-repaired return
// expression of a freshly added query) into an initial representation: a
// set of concrete variable bindings, one per maximal state-computable
// subexpression of e, and a return expression using only those variables
// and e's own arguments. This is the naive, unoptimized starting point
// later improved by the Improver collaborator (spec.md 4.5) — it performs
// no cost comparison, unlike the improver's eventual representation
// choice.
func UnpackRepresentation(e ast.Exp) ([]ast.CVarBinding, ast.Exp) {
	u := &unpacker{}
	ret := u.walk(e)
	return u.bindings, ret
}

func (u *unpacker) walk(e ast.Exp) ast.Exp {
	if sv, ok := e.(ast.EStateVar); ok {
		meaning := ast.StripStateVar(sv.Arg)
		v := ast.FreshVar(meaning.Type())
		u.bindings = append(u.bindings, ast.CVarBinding{Var: v, Meaning: meaning})
		return v
	}

	switch n := e.(type) {
	case ast.EVar:
		return n
	case ast.ELit:
		return n
	case ast.ECall:
		args := make([]ast.Exp, len(n.Args))
		for i, a := range n.Args {
			args[i] = u.walk(a)
		}
		return ast.ECall{Func: n.Func, Args: args, Typ: n.Typ}
	case ast.EEq:
		return ast.EEq{Lhs: u.walk(n.Lhs), Rhs: u.walk(n.Rhs)}
	case ast.EAll:
		clauses := make([]ast.Exp, len(n.Clauses))
		for i, c := range n.Clauses {
			clauses[i] = u.walk(c)
		}
		return ast.EAll{Clauses: clauses}
	case ast.ENot:
		return ast.ENot{Arg: u.walk(n.Arg)}
	case ast.EImplies:
		return ast.EImplies{Lhs: u.walk(n.Lhs), Rhs: u.walk(n.Rhs)}
	case ast.EFilter:
		return ast.EFilter{Bag: u.walk(n.Bag), Pred: u.walkLambda(n.Pred), Typ: n.Typ}
	case ast.EMap:
		return ast.EMap{Bag: u.walk(n.Bag), Fun: u.walkLambda(n.Fun), Typ: n.Typ}
	case ast.EUnaryOp:
		return ast.EUnaryOp{Op: n.Op, Arg: u.walk(n.Arg), Typ: n.Typ}
	case ast.EIn:
		return ast.EIn{Elem: u.walk(n.Elem), Bag: u.walk(n.Bag)}
	case ast.EGetField:
		return ast.EGetField{Rec: u.walk(n.Rec), Field: n.Field, Typ: n.Typ}
	case ast.EMakeMap2:
		return ast.EMakeMap2{Bag: u.walk(n.Bag), Fun: u.walkLambda(n.Fun), Typ: n.Typ}
	case ast.EMapGet:
		return ast.EMapGet{Map: u.walk(n.Map), Key_: u.walk(n.Key_), Typ: n.Typ}
	default:
		panic("rename: unhandled Exp variant in UnpackRepresentation")
	}
}

func (u *unpacker) walkLambda(l *ast.ELambda) *ast.ELambda {
	return &ast.ELambda{Arg: l.Arg, Body: u.walk(l.Body)}
}
