// pulltemps.go implements the read-after-write temp-lifting pass used by
// Assembler.Assemble, ported from cozy's synthesis/misc.py:pull_temps.
package schedule

import (
	"github.com/izgzhen/synthctl/pkg/ast"
)

// pullTemps rewrites s so that every subexpression for which expIsBad
// returns true is replaced by a fresh variable, and appends the
// corresponding declaration to declsOut (in the order they must run before
// s). Declarations that depend on a loop variable bound inside an SForEach
// are packaged as a map built over that loop's bag, so they can still be
// lifted above the loop itself.
func pullTemps(s ast.Stm, declsOut *[]ast.SDecl, expIsBad func(ast.Exp) bool) ast.Stm {
	pull := func(e ast.Exp) ast.Exp {
		if expIsBad(e) {
			v := ast.FreshVar(e.Type())
			*declsOut = append(*declsOut, ast.SDecl{Var: v, Val: e})
			return v
		}
		return e
	}

	switch n := s.(type) {
	case ast.SNoOp:
		return n
	case ast.SSeq:
		s1 := pullTemps(n.S1, declsOut, expIsBad)
		s2 := pullTemps(n.S2, declsOut, expIsBad)
		return ast.SSeq{S1: s1, S2: s2}
	case ast.SDecl:
		return ast.SDecl{Var: n.Var, Val: pull(n.Val)}
	case ast.SIf:
		cond := pull(n.Cond)
		thenS := pullTemps(n.ThenBranch, declsOut, expIsBad)
		elseS := pullTemps(n.ElseBranch, declsOut, expIsBad)
		return ast.SIf{Cond: cond, ThenBranch: thenS, ElseBranch: elseS}
	case ast.SForEach:
		bag := pull(n.Iter)
		var inner []ast.SDecl
		body := pullTemps(n.Body, &inner, expIsBad)

		var ok, toFix []ast.SDecl
		for _, d := range inner {
			if _, bound := ast.FreeVars(d.Val)[n.LoopVar.Name]; bound {
				toFix = append(toFix, d)
			} else {
				ok = append(ok, d)
			}
		}
		*declsOut = append(*declsOut, ok...)

		for _, d := range toFix {
			mt := ast.TMap{Key_: n.LoopVar.Typ, Value: d.Var.Typ}
			m := ast.EMakeMap2{
				Bag: bag,
				Fun: &ast.ELambda{Arg: n.LoopVar, Body: d.Val},
				Typ: mt,
			}
			mv := ast.FreshVar(mt)
			*declsOut = append(*declsOut, ast.SDecl{Var: mv, Val: m})
			body = ast.SubstStm(body, map[string]ast.Exp{
				d.Var.Name: ast.EMapGet{Map: mv, Key_: n.LoopVar, Typ: d.Var.Typ},
			})
		}
		return ast.SForEach{LoopVar: n.LoopVar, Iter: bag, Body: body}
	case ast.SAssign:
		return ast.SAssign{Lhs: n.Lhs, Rhs: pull(n.Rhs)}
	case ast.SCall:
		args := make([]ast.Exp, len(n.Args))
		for i, a := range n.Args {
			args[i] = pull(a)
		}
		return ast.SCall{Target: n.Target, Func: n.Func, Args: args}
	case ast.SMapDel:
		return ast.SMapDel{Map: n.Map, Key_: pull(n.Key_)}
	case ast.SMapPut:
		return ast.SMapPut{Map: n.Map, Key_: pull(n.Key_), Value: pull(n.Value)}
	case ast.SMapUpdate:
		key := pull(n.Key_)
		var inner []ast.SDecl
		change := pullTemps(n.Change, &inner, expIsBad)
		for _, d := range inner {
			if _, bound := ast.FreeVars(d.Val)[n.ValVar.Name]; bound {
				*declsOut = append(*declsOut, ast.SDecl{
					Var: d.Var,
					Val: ast.Subst(d.Val, map[string]ast.Exp{
						n.ValVar.Name: ast.EMapGet{Map: n.Map, Key_: key, Typ: n.ValVar.Typ},
					}),
				})
			} else {
				*declsOut = append(*declsOut, d)
			}
		}
		return ast.SMapUpdate{Map: n.Map, Key_: key, ValVar: n.ValVar, Change: change}
	default:
		panic("schedule: unhandled Stm variant in pullTemps")
	}
}

func declsToStms(decls []ast.SDecl) []ast.Stm {
	out := make([]ast.Stm, len(decls))
	for i, d := range decls {
		out[i] = d
	}
	return out
}
