package gc

import (
	"testing"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/maint"
)

// fakeTarget is a tiny in-memory Implementation stand-in sufficient to
// exercise Collector.Collect.
type fakeTarget struct {
	specs     []*ast.Query
	impls     map[string]*ast.Query
	conc      []ast.CVarBinding
	handleUps []maint.HandleUpdateEntry
	updates   []maint.UpdateEntry
	ops       []*ast.Operation
}

func (f *fakeTarget) QuerySpecs() []*ast.Query { return f.specs }
func (f *fakeTarget) QueryImpl(name string) (*ast.Query, bool) {
	q, ok := f.impls[name]
	return q, ok
}
func (f *fakeTarget) Concretization() []ast.CVarBinding     { return f.conc }
func (f *fakeTarget) HandleUpdates() []maint.HandleUpdateEntry { return f.handleUps }
func (f *fakeTarget) Updates() []maint.UpdateEntry              { return f.updates }
func (f *fakeTarget) Operations() []*ast.Operation           { return f.ops }

func (f *fakeTarget) RemoveQuery(name string) {
	for i, q := range f.specs {
		if q.Name == name {
			f.specs = append(f.specs[:i], f.specs[i+1:]...)
			break
		}
	}
	delete(f.impls, name)
}

func (f *fakeTarget) RemoveConcretization(v ast.EVar) {
	for i, b := range f.conc {
		if b.Var.Name == v.Name {
			f.conc = append(f.conc[:i], f.conc[i+1:]...)
			break
		}
	}
}

func (f *fakeTarget) RemoveUpdate(v ast.EVar, opName string) {
	for i, u := range f.updates {
		if u.Var.Name == v.Name && u.Op == opName {
			f.updates = append(f.updates[:i], f.updates[i+1:]...)
			break
		}
	}
}

func TestCollectRemovesUnreachableQueryAndState(t *testing.T) {
	liveVar := ast.EVar{Name: "cv_live", Typ: ast.TInt{}}
	deadVar := ast.EVar{Name: "cv_dead", Typ: ast.TInt{}}

	liveQuery := &ast.Query{Name: "public_count", Vis: ast.Public, Ret: ast.EVar{Name: "cv_live", Typ: ast.TInt{}}}
	deadQuery := &ast.Query{Name: "orphan_helper", Vis: ast.Internal, Ret: ast.EVar{Name: "cv_dead", Typ: ast.TInt{}}}
	op := &ast.Operation{Name: "bump"}

	target := &fakeTarget{
		specs: []*ast.Query{liveQuery, deadQuery},
		impls: map[string]*ast.Query{
			"public_count":   liveQuery,
			"orphan_helper":  deadQuery,
		},
		conc: []ast.CVarBinding{
			{Var: liveVar, Meaning: ast.ELit{Value: 0, Typ: ast.TInt{}}},
			{Var: deadVar, Meaning: ast.ELit{Value: 0, Typ: ast.TInt{}}},
		},
		updates: []maint.UpdateEntry{
			{Var: liveVar, Op: "bump", Stm: ast.SNoOp{}},
			{Var: deadVar, Op: "bump", Stm: ast.SNoOp{}},
		},
		ops: []*ast.Operation{op},
	}

	(&Collector{Target: target}).Collect()

	if _, ok := target.impls["orphan_helper"]; ok {
		t.Errorf("orphan_helper should have been removed")
	}
	if _, ok := target.impls["public_count"]; !ok {
		t.Errorf("public_count should have survived")
	}
	for _, b := range target.conc {
		if b.Var.Name == "cv_dead" {
			t.Errorf("cv_dead should have been removed")
		}
	}
	for _, u := range target.updates {
		if u.Var.Name == "cv_dead" {
			t.Errorf("update for cv_dead should have been removed")
		}
	}
}

func TestCollectKeepsQueryUsedOnlyByHandleUpdate(t *testing.T) {
	helperQuery := &ast.Query{Name: "modified_handles_1", Vis: ast.Internal, Ret: ast.ELit{Value: true, Typ: ast.TBool{}}}
	target := &fakeTarget{
		specs: []*ast.Query{helperQuery},
		impls: map[string]*ast.Query{"modified_handles_1": helperQuery},
		handleUps: []maint.HandleUpdateEntry{
			{
				Type: ast.THandle{Name: "Node", ValueType: ast.TInt{}},
				Op:   "bump",
				Stm: ast.SForEach{
					LoopVar: ast.EVar{Name: "h", Typ: ast.THandle{Name: "Node", ValueType: ast.TInt{}}},
					Iter:    ast.ECall{Func: "modified_handles_1", Typ: ast.TSet{Elem: ast.THandle{Name: "Node", ValueType: ast.TInt{}}}},
					Body:    ast.SNoOp{},
				},
			},
		},
	}

	(&Collector{Target: target}).Collect()

	if _, ok := target.impls["modified_handles_1"]; !ok {
		t.Errorf("modified_handles_1 should survive: it is used by a handle update")
	}
}
