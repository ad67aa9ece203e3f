// Package gc implements the reachability garbage collector of spec.md 4.6:
// a mark-and-sweep pass that discards every query, concrete state
// variable, and maintenance statement not reachable from a public query or
// a handle update. Grounded on impls.py's Implementation.cleanup,
// Implementation.queries_used_by, and construct_initial_implementation
// (which calls cleanup once right after the initial handle updates are
// set up, establishing the same invariant this package's caller must
// preserve: GC never runs before handle updates exist).
package gc

import (
	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/maint"
)

// Target is the subset of Implementation state the collector reads and
// mutates.
type Target interface {
	QuerySpecs() []*ast.Query
	QueryImpl(name string) (*ast.Query, bool)
	Concretization() []ast.CVarBinding
	HandleUpdates() []maint.HandleUpdateEntry
	Updates() []maint.UpdateEntry
	Operations() []*ast.Operation

	RemoveQuery(name string)
	RemoveConcretization(v ast.EVar)
	RemoveUpdate(v ast.EVar, opName string)
}

// Collector runs the reachability sweep over a Target.
type Collector struct {
	Target Target
}

// Collect removes every query, concretization variable, and maintenance
// statement not reachable from a public query or a handle update.
func (c *Collector) Collect() {
	specsByName := make(map[string]bool)
	for _, q := range c.Target.QuerySpecs() {
		specsByName[q.Name] = true
	}

	g := newGraph(c.Target, specsByName)

	var roots []string
	for _, q := range c.Target.QuerySpecs() {
		if q.Vis == ast.Public {
			roots = append(roots, queryNode(q.Name))
		}
	}
	for _, h := range c.Target.HandleUpdates() {
		for _, used := range queriesUsedBy(h.Stm, specsByName) {
			roots = append(roots, queryNode(used))
		}
	}

	reachable := g.reachableFrom(roots)

	keep := make(map[string]bool)
	for node := range reachable {
		if name, ok := stripQueryNode(node); ok {
			keep[name] = true
		}
	}

	for _, q := range c.Target.QuerySpecs() {
		if !keep[q.Name] {
			c.Target.RemoveQuery(q.Name)
		}
	}

	// A concretization variable survives only if some surviving query
	// implementation's return expression still reads it.
	survivingFreeVars := make(map[string]bool)
	for name := range keep {
		impl, ok := c.Target.QueryImpl(name)
		if !ok {
			continue
		}
		for v := range ast.FreeVars(impl.Ret) {
			survivingFreeVars[v] = true
		}
	}

	keptVars := make(map[string]bool)
	for _, binding := range c.Target.Concretization() {
		if survivingFreeVars[binding.Var.Name] {
			keptVars[binding.Var.Name] = true
		} else {
			c.Target.RemoveConcretization(binding.Var)
		}
	}

	for _, u := range c.Target.Updates() {
		if !keptVars[u.Var.Name] {
			c.Target.RemoveUpdate(u.Var, u.Op)
		}
	}
}

// queriesUsedBy returns the names of every query known to specsByName that
// stm calls, mirroring impls.py's queries_used_by.
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

func queryNode(name string) string { return "q:" + name }
func varNode(name string) string   { return "v:" + name }
func stmNode(varName, op string) string { return "s:" + varName + "/" + op }

func stripQueryNode(node string) (string, bool) {
	if len(node) > 2 && node[:2] == "q:" {
		return node[2:], true
	}
	return "", false
}

// graph is the successor function described in impls.py's cleanup: query
// nodes point at the concrete variables their implementation reads,
// variable nodes point at their own per-operation update statements, and
// statement nodes point at the queries they call.
type graph struct {
	successors map[string][]string
}

func newGraph(t Target, specsByName map[string]bool) *graph {
	g := &graph{successors: make(map[string][]string)}

	for _, q := range t.QuerySpecs() {
		impl, ok := t.QueryImpl(q.Name)
		if !ok {
			continue
		}
		var succ []string
		concreteVarNames := make(map[string]bool)
		for _, binding := range t.Concretization() {
			concreteVarNames[binding.Var.Name] = true
		}
		for v := range ast.FreeVars(impl.Ret) {
			if concreteVarNames[v] {
				succ = append(succ, varNode(v))
			}
		}
		g.successors[queryNode(q.Name)] = succ
	}

	ops := t.Operations()
	for _, binding := range t.Concretization() {
		var succ []string
		for _, op := range ops {
			succ = append(succ, stmNode(binding.Var.Name, op.Name))
		}
		g.successors[varNode(binding.Var.Name)] = succ
	}

	for _, u := range t.Updates() {
		var succ []string
		for _, name := range queriesUsedBy(u.Stm, specsByName) {
			succ = append(succ, queryNode(name))
		}
		g.successors[stmNode(u.Var.Name, u.Op)] = succ
	}

	return g
}

func (g *graph) reachableFrom(roots []string) map[string]bool {
	visited := make(map[string]bool)
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, g.successors[n]...)
	}
	return visited
}
