package improve

import (
	"context"
	"testing"
	"time"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
)

type fakeImprover struct {
	solutions chan collab.Solution
}

func (f *fakeImprover) Improve(ctx context.Context, target ast.Exp, assumptions, hints []ast.Exp, binders []ast.EVar, cost collab.CostModel) (<-chan collab.Solution, error) {
	return f.solutions, nil
}

type fakeCost struct{ n float64 }

func (f *fakeCost) Cost(rep []ast.CVarBinding, ret ast.Exp) (float64, error) {
	f.n--
	return f.n, nil
}

type fakeTarget struct {
	installs int
}

func (f *fakeTarget) SetImpl(ctx context.Context, q *ast.Query, rep []ast.CVarBinding, ret ast.Exp) error {
	f.installs++
	return nil
}

func TestOrchestratorInstallsEachImprovingSolution(t *testing.T) {
	solutions := make(chan collab.Solution, 2)
	solutions <- collab.Solution{Ret: ast.ELit{Value: 1, Typ: ast.TInt{}}}
	solutions <- collab.Solution{Ret: ast.ELit{Value: 2, Typ: ast.TInt{}}}
	close(solutions)

	target := &fakeTarget{}
	job := Job{
		Query:    &ast.Query{Name: "q", Ret: ast.ELit{Value: 0, Typ: ast.TInt{}}},
		Improver: &fakeImprover{solutions: solutions},
		Cost:     &fakeCost{n: 10},
		Target:   target,
	}

	o := New(2)
	if err := o.Start(context.Background(), "q", job); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for o.Running("q") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if o.Running("q") {
		t.Fatalf("job %q still running after deadline", "q")
	}
	if target.installs != 2 {
		t.Errorf("installs = %d, want 2", target.installs)
	}
}

func TestStopCancelsRunningJob(t *testing.T) {
	solutions := make(chan collab.Solution)
	job := Job{
		Query:    &ast.Query{Name: "q", Ret: ast.ELit{Value: 0, Typ: ast.TInt{}}},
		Improver: &fakeImprover{solutions: solutions},
		Cost:     &fakeCost{n: 10},
		Target:   &fakeTarget{},
	}

	o := New(1)
	if err := o.Start(context.Background(), "q", job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := o.Stop("q"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if o.Running("q") {
		t.Errorf("job still marked running after Stop returned")
	}
}

func TestStartRejectsDuplicateName(t *testing.T) {
	solutions := make(chan collab.Solution)
	job := Job{
		Query:    &ast.Query{Name: "q", Ret: ast.ELit{Value: 0, Typ: ast.TInt{}}},
		Improver: &fakeImprover{solutions: solutions},
		Cost:     &fakeCost{n: 10},
		Target:   &fakeTarget{},
	}

	o := New(1)
	if err := o.Start(context.Background(), "q", job); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(context.Background(), "q", job); err == nil {
		t.Errorf("expected error starting a duplicate job name")
	}
	_ = o.Stop("q")
}
