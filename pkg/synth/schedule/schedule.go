// Package schedule implements the update scheduler and code assembler of
// spec.md 4.7: for each operation, order its per-variable maintenance
// statements so that an update that reads a query runs, where possible,
// before the updates of the variables that query reads; break any ordering
// cycles with a minimum-feedback-arc-set heuristic rather than rejecting
// them outright; then lift read-after-write hazards into hoisted temporary
// declarations before assembling the final operation bodies. Grounded on
// impls.py's `code` property (the DirectedGraph/minimum_feedback_arc_set/
// toposort sequence, and the pull_temps call per surviving variable) and
// adapted from the teacher's pkg/engine/dag.go topological-level builder,
// which this package generalizes from "reject cycles" to "break cycles".
package schedule

import (
	"sort"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/maint"
)

// Target is the subset of Implementation state the assembler reads.
type Target interface {
	Spec() *ast.Specification
	QuerySpecs() []*ast.Query
	QueryImpls() map[string]*ast.Query
	Concretization() []ast.CVarBinding
	Updates() []maint.UpdateEntry
	HandleUpdates() []maint.HandleUpdateEntry
	Operations() []*ast.Operation
}

// Assembler produces the final, efficient specification for a Target: the
// abstract assumptions and invariants are dropped (they already did their
// job during synthesis), every query keeps only its installed
// implementation, and every operation's body is the ordered, temp-lifted
// sequence of its maintenance statements plus any handle updates.
type Assembler struct {
	Target Target
}

type updateKey struct {
	varName string
	op      string
}

// Assemble builds the final specification.
func (a *Assembler) Assemble() *ast.Specification {
	spec := a.Target.Spec()
	queryImpls := a.Target.QueryImpls()

	stateReadByQuery := make(map[string]map[string]ast.Type, len(queryImpls))
	for name, q := range queryImpls {
		stateReadByQuery[name] = ast.FreeVars(q.Ret)
	}

	specsByName := make(map[string]bool)
	for _, q := range a.Target.QuerySpecs() {
		specsByName[q.Name] = true
	}

	var concVars []ast.EVar
	for _, b := range a.Target.Concretization() {
		concVars = append(concVars, b.Var)
	}

	updates := make(map[updateKey]ast.Stm)
	for _, u := range a.Target.Updates() {
		updates[updateKey{u.Var.Name, u.Op}] = u.Stm
	}

	temps := make(map[string][]ast.Stm)
	orderedVarsPerOp := make(map[string][]ast.EVar)

	for _, op := range a.Target.Operations() {
		order := orderBreakingCycles(concVars, func(v ast.EVar) []ast.EVar {
			stm := updates[updateKey{v.Name, op.Name}]
			var res []ast.EVar
			seen := make(map[string]bool)
			for _, qname := range queriesUsedBy(stm, specsByName) {
				for varName := range stateReadByQuery[qname] {
					if seen[varName] {
						continue
					}
					for _, cv := range concVars {
						if cv.Name == varName {
							seen[varName] = true
							res = append(res, cv)
						}
					}
				}
			}
			return res
		})
		orderedVarsPerOp[op.Name] = order

		thingsUpdated := make(map[string]bool)
		for _, v := range order {
			thingsUpdated[v.Name] = true
			stm := updates[updateKey{v.Name, op.Name}]

			problematic := func(e ast.Exp) bool {
				bad := false
				ast.VisitCalls(e, func(call ast.ECall) {
					if bad || !specsByName[call.Func] {
						return
					}
					for varName := range stateReadByQuery[call.Func] {
						if thingsUpdated[varName] {
							bad = true
							return
						}
					}
				})
				return bad
			}

			var decls []ast.SDecl
			stm = pullTemps(stm, &decls, problematic)
			temps[op.Name] = append(temps[op.Name], declsToStms(decls)...)
			updates[updateKey{v.Name, op.Name}] = stm
		}
	}

	var newOps []*ast.Operation
	for _, op := range a.Target.Operations() {
		var stms []ast.Stm
		stms = append(stms, temps[op.Name]...)
		for _, v := range orderedVarsPerOp[op.Name] {
			stms = append(stms, updates[updateKey{v.Name, op.Name}])
		}
		for _, h := range a.Target.HandleUpdates() {
			if h.Op == op.Name {
				stms = append(stms, h.Stm)
			}
		}
		newOps = append(newOps, &ast.Operation{
			Name:       op.Name,
			Args:       op.Args,
			Assumptions: nil,
			Body:       ast.Seq(stms...),
			Docstring:  op.Docstring,
		})
	}

	var stateVars []ast.StateVarDecl
	for _, b := range a.Target.Concretization() {
		stateVars = append(stateVars, ast.StateVarDecl{Name: b.Var.Name, Type: b.Var.Typ})
	}

	var queries []*ast.Query
	for _, q := range a.Target.QuerySpecs() {
		if impl, ok := queryImpls[q.Name]; ok {
			queries = append(queries, impl)
		}
	}

	return &ast.Specification{
		Name:        spec.Name,
		Types:       spec.Types,
		ExternFuncs: spec.ExternFuncs,
		StateVars:   stateVars,
		Assumptions: nil,
		Queries:     queries,
		Operations:  newOps,
		Header:      spec.Header,
		Footer:      spec.Footer,
		Docstring:   spec.Docstring,
	}
}

func queriesUsedBy(stm ast.Stm, specsByName map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	ast.VisitCallsStm(stm, func(call ast.ECall) {
		if specsByName[call.Func] && !seen[call.Func] {
			seen[call.Func] = true
			out = append(out, call.Func)
		}
	})
	return out
}

// orderBreakingCycles produces a linear order of nodes approximating a
// topological sort of the successor relation, breaking any cycles via the
// greedy minimum-feedback-arc-set heuristic of Eades, Lin & Smyth: repeatedly
// strip sinks to the back and sources to the front of the order, and when
// neither exists, move the node with the highest (out-degree - in-degree)
// to the front. Ties are broken by variable name for determinism.
func orderBreakingCycles(nodes []ast.EVar, successors func(ast.EVar) []ast.EVar) []ast.EVar {
	byName := make(map[string]ast.EVar, len(nodes))
	succ := make(map[string][]string)
	pred := make(map[string][]string)
	remaining := make(map[string]bool, len(nodes))

	for _, n := range nodes {
		byName[n.Name] = n
		remaining[n.Name] = true
	}
	for _, n := range nodes {
		for _, s := range successors(n) {
			succ[n.Name] = append(succ[n.Name], s.Name)
			pred[s.Name] = append(pred[s.Name], n.Name)
		}
	}

	outDeg := func(name string) int {
		c := 0
		for _, s := range succ[name] {
			if remaining[s] {
				c++
			}
		}
		return c
	}
	inDeg := func(name string) int {
		c := 0
		for _, p := range pred[name] {
			if remaining[p] {
				c++
			}
		}
		return c
	}

	var front, back []string
	for len(remaining) > 0 {
		progressed := true
		for progressed {
			progressed = false

			var sinks []string
			for name := range remaining {
				if outDeg(name) == 0 {
					sinks = append(sinks, name)
				}
			}
			if len(sinks) > 0 {
				sort.Strings(sinks)
				for _, s := range sinks {
					back = append([]string{s}, back...)
					delete(remaining, s)
				}
				progressed = true
			}

			var sources []string
			for name := range remaining {
				if inDeg(name) == 0 {
					sources = append(sources, name)
				}
			}
			if len(sources) > 0 {
				sort.Strings(sources)
				front = append(front, sources...)
				for _, s := range sources {
					delete(remaining, s)
				}
				progressed = true
			}
		}

		if len(remaining) == 0 {
			break
		}

		names := make([]string, 0, len(remaining))
		for name := range remaining {
			names = append(names, name)
		}
		sort.Strings(names)

		best := names[0]
		bestScore := outDeg(best) - inDeg(best)
		for _, name := range names[1:] {
			score := outDeg(name) - inDeg(name)
			if score > bestScore {
				bestScore = score
				best = name
			}
		}
		front = append(front, best)
		delete(remaining, best)
	}

	order := append(front, back...)
	result := make([]ast.EVar, len(order))
	for i, name := range order {
		result[i] = byName[name]
	}
	return result
}
