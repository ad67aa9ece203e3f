// Package improve implements the improver orchestrator of spec.md 4.5: one
// background goroutine per query under active improvement, a bounded
// semaphore limiting how many run concurrently, and cooperative
// cancellation with a bounded join deadline. Grounded on the teacher's
// pkg/engine/scheduler.go worker-pool idiom (sync.WaitGroup, a buffered
// work channel, context.WithTimeout per attempt) and on cozy's
// synthesis/high_level_interface.py ImproveQueryJob/stop_job for the
// improve-then-install-on-every-better-solution loop and the
// stop-then-join-with-timeout shutdown sequence.
package improve

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
	"github.com/izgzhen/synthctl/pkg/synth/errs"
)

const (
	// pollInterval bounds how promptly a job notices its context has been
	// cancelled while it is otherwise blocked reading the improver's
	// solution channel (spec.md 4.5).
	pollInterval = 500 * time.Millisecond

	// joinDeadline is how long Stop waits for a cancelled job's goroutine
	// to actually exit before reporting it as deadlocked.
	joinDeadline = 30 * time.Second
)

// Target installs a newly found, strictly cheaper representation for a
// query, running the full representation-installer pipeline (spec.md 4.3).
type Target interface {
	SetImpl(ctx context.Context, q *ast.Query, rep []ast.CVarBinding, ret ast.Exp) error
}

// Job describes one query's improvement search.
type Job struct {
	Query       *ast.Query
	Improver    collab.Improver
	Cost        collab.CostModel
	Target      Target
	Assumptions []ast.Exp
	Hints       []ast.Exp
	Binders     []ast.EVar
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Orchestrator runs a bounded number of improvement jobs concurrently. It is
// owned by the driver and must be stopped (via StopAll) before the driver
// exits, so that no goroutine outlives the process.
type Orchestrator struct {
	mu   sync.Mutex
	jobs map[string]*runningJob
	sem  chan struct{}
}

// New builds an Orchestrator that runs at most maxConcurrent jobs at once.
// maxConcurrent <= 0 is treated as 1.
func New(maxConcurrent int) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Orchestrator{
		jobs: make(map[string]*runningJob),
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// Start launches an improvement job for the given query name. It returns
// immediately; the job itself may block waiting for a free slot in the
// bounded semaphore before it begins searching. Starting a job under a name
// that is already running is an error.
func (o *Orchestrator) Start(ctx context.Context, name string, job Job) error {
	o.mu.Lock()
	if _, exists := o.jobs[name]; exists {
		o.mu.Unlock()
		return fmt.Errorf("improve: job %q is already running", name)
	}
	jobCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	rj := &runningJob{cancel: cancel, done: done}
	o.jobs[name] = rj
	o.mu.Unlock()

	go o.run(jobCtx, name, job, rj)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, name string, job Job, rj *runningJob) {
	defer close(rj.done)
	defer o.forget(name)

	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return
	}

	solutions, err := job.Improver.Improve(ctx, job.Query.Ret, job.Assumptions, job.Hints, job.Binders, job.Cost)
	if err != nil {
		rj.err = errs.NewCollaboratorFailure("improve", err)
		return
	}

	bestCost := math.Inf(1)
	for {
		select {
		case sol, ok := <-solutions:
			if !ok {
				return
			}
			cost, err := job.Cost.Cost(sol.Rep, sol.Ret)
			if err != nil {
				rj.err = errs.NewCollaboratorFailure("cost", err)
				return
			}
			if cost >= bestCost {
				continue
			}
			if err := job.Target.SetImpl(ctx, job.Query, sol.Rep, sol.Ret); err != nil {
				rj.err = err
				return
			}
			bestCost = cost
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
			// wake up periodically purely so a cancelled ctx is noticed
			// promptly even if the improver never sends another solution.
		}
	}
}

func (o *Orchestrator) forget(name string) {
	o.mu.Lock()
	delete(o.jobs, name)
	o.mu.Unlock()
}

// Running reports whether a job is currently searching for name.
func (o *Orchestrator) Running(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.jobs[name]
	return ok
}

// RunningNames returns the names of every currently running job, used by
// the driver to wait for improvement to finish and to report the queries
// still improving when the run is cut short.
func (o *Orchestrator) RunningNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.jobs))
	for n := range o.jobs {
		out = append(out, n)
	}
	return out
}

// Stop cancels the named job and waits up to joinDeadline for its goroutine
// to exit. Stopping a job that is not running is a no-op. A job that fails
// to join within the deadline is reported as a deadlocked task (spec.md 7),
// since the driver can make no further progress on it.
func (o *Orchestrator) Stop(name string) error {
	o.mu.Lock()
	rj, ok := o.jobs[name]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	rj.cancel()
	select {
	case <-rj.done:
		return rj.err
	case <-time.After(joinDeadline):
		return errs.NewDeadlockedTask(name, fmt.Errorf("improver goroutine did not exit within %s", joinDeadline))
	}
}

// StopAll stops every running job, collecting (but not short-circuiting on)
// the first error encountered.
func (o *Orchestrator) StopAll() error {
	o.mu.Lock()
	names := make([]string, 0, len(o.jobs))
	for n := range o.jobs {
		names = append(names, n)
	}
	o.mu.Unlock()

	var firstErr error
	for _, n := range names {
		if err := o.Stop(n); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
