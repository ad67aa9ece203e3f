package ast

// FreeVars returns the set of variable names occurring free in e, as a map
// from name to its Type (so callers can reconstruct EVar references without
// re-deriving types).
func FreeVars(e Exp) map[string]Type {
	out := make(map[string]Type)
	collectFreeVars(e, nil, out)
	return out
}

// FreeVarsStm returns the set of variables occurring free in s.
func FreeVarsStm(s Stm) map[string]Type {
	out := make(map[string]Type)
	collectFreeVarsStm(s, nil, out)
	return out
}

func bound(name string, in []string) bool {
	for _, b := range in {
		if b == name {
			return true
		}
	}
	return false
}

func collectFreeVars(e Exp, boundVars []string, out map[string]Type) {
	switch e := e.(type) {
	case EVar:
		if !bound(e.Name, boundVars) {
			out[e.Name] = e.Typ
		}
	case ELit:
		// no free vars
	case ECall:
		for _, a := range e.Args {
			collectFreeVars(a, boundVars, out)
		}
	case EEq:
		collectFreeVars(e.Lhs, boundVars, out)
		collectFreeVars(e.Rhs, boundVars, out)
	case EAll:
		for _, c := range e.Clauses {
			collectFreeVars(c, boundVars, out)
		}
	case ENot:
		collectFreeVars(e.Arg, boundVars, out)
	case EImplies:
		collectFreeVars(e.Lhs, boundVars, out)
		collectFreeVars(e.Rhs, boundVars, out)
	case EFilter:
		collectFreeVars(e.Bag, boundVars, out)
		collectFreeVars(e.Pred.Body, append(boundVars, e.Pred.Arg.Name), out)
	case EMap:
		collectFreeVars(e.Bag, boundVars, out)
		collectFreeVars(e.Fun.Body, append(boundVars, e.Fun.Arg.Name), out)
	case EUnaryOp:
		collectFreeVars(e.Arg, boundVars, out)
	case EIn:
		collectFreeVars(e.Elem, boundVars, out)
		collectFreeVars(e.Bag, boundVars, out)
	case EGetField:
		collectFreeVars(e.Rec, boundVars, out)
	case EMakeMap2:
		collectFreeVars(e.Bag, boundVars, out)
		collectFreeVars(e.Fun.Body, append(boundVars, e.Fun.Arg.Name), out)
	case EMapGet:
		collectFreeVars(e.Map, boundVars, out)
		collectFreeVars(e.Key_, boundVars, out)
	case EStateVar:
		collectFreeVars(e.Arg, boundVars, out)
	default:
		panic("ast: unhandled Exp variant in FreeVars")
	}
}

func collectFreeVarsStm(s Stm, boundVars []string, out map[string]Type) {
	switch s := s.(type) {
	case SNoOp:
	case SSeq:
		collectFreeVarsStm(s.S1, boundVars, out)
		collectFreeVarsStm(s.S2, boundVars, out)
	case SDecl:
		collectFreeVars(s.Val, boundVars, out)
	case SAssign:
		collectFreeVars(s.Lhs, boundVars, out)
		collectFreeVars(s.Rhs, boundVars, out)
	case SIf:
		collectFreeVars(s.Cond, boundVars, out)
		collectFreeVarsStm(s.ThenBranch, boundVars, out)
		collectFreeVarsStm(s.ElseBranch, boundVars, out)
	case SForEach:
		collectFreeVars(s.Iter, boundVars, out)
		collectFreeVarsStm(s.Body, append(boundVars, s.LoopVar.Name), out)
	case SCall:
		collectFreeVars(s.Target, boundVars, out)
		for _, a := range s.Args {
			collectFreeVars(a, boundVars, out)
		}
	case SMapPut:
		collectFreeVars(s.Map, boundVars, out)
		collectFreeVars(s.Key_, boundVars, out)
		collectFreeVars(s.Value, boundVars, out)
	case SMapDel:
		collectFreeVars(s.Map, boundVars, out)
		collectFreeVars(s.Key_, boundVars, out)
	case SMapUpdate:
		collectFreeVars(s.Map, boundVars, out)
		collectFreeVars(s.Key_, boundVars, out)
		collectFreeVarsStm(s.Change, append(boundVars, s.ValVar.Name), out)
	default:
		panic("ast: unhandled Stm variant in FreeVars")
	}
}

// FreeVarsQuery returns the free variables of q's return expression and
// assumptions, excluding q's own args.
func FreeVarsQuery(q *Query) map[string]Type {
	out := make(map[string]Type)
	argNames := make([]string, len(q.Args))
	for i, a := range q.Args {
		argNames[i] = a.Name
	}
	collectFreeVars(q.Ret, argNames, out)
	for _, a := range q.Assumptions {
		collectFreeVars(a, argNames, out)
	}
	return out
}
