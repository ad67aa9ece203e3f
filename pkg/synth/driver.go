package synth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/serial"
	"github.com/izgzhen/synthctl/pkg/synth/errs"
	"github.com/izgzhen/synthctl/pkg/synth/metrics"
	"github.com/izgzhen/synthctl/pkg/synthcfg"
	"github.com/izgzhen/synthctl/pkg/synthlog"
	"github.com/izgzhen/synthctl/pkg/synthtrace"
)

// Driver is the single entry point a CLI or long-running process uses to
// run a synthesis pass end to end: load a specification, construct its
// initial implementation, improve every public query under a time budget,
// and assemble the result. It threads the operational configuration
// explicitly through everything it builds rather than relying on
// package-level state, so that two Drivers in the same process never
// interfere with each other.
type Driver struct {
	// RunID identifies one Run call for logging and tracing correlation.
	RunID string

	collab  Collaborators
	cfg     synthcfg.Config
	log     *synthlog.Logger
	tracer  *synthtrace.Tracer
	metrics *metrics.Metrics

	impl           *Implementation
	handlesPlanned bool
}

// NewDriver builds a Driver. collab supplies the pluggable solver,
// improver, derivative, repairer, simplifier, and handle analyzer; cfg
// supplies the operational knobs (paths, concurrency, timeouts, and the
// nested logging/tracing/metrics configs).
func NewDriver(collab Collaborators, cfg synthcfg.Config) (*Driver, error) {
	log, err := synthlog.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	tracer, err := synthtrace.New(cfg.Tracing, "synthctl", "dev", "development")
	if err != nil {
		return nil, fmt.Errorf("build tracer: %w", err)
	}
	m, err := metrics.New(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("build metrics: %w", err)
	}
	return &Driver{
		RunID:   uuid.NewString(),
		collab:  collab,
		cfg:     cfg,
		log:     log,
		tracer:  tracer,
		metrics: m,
	}, nil
}

// Run loads the specification at d.cfg.SpecPath, constructs its initial
// implementation, improves every public query, and assembles the final
// specification. d.cfg.PerQueryTimeout is applied once, as a single deadline
// for the whole improvement phase shared by all jobs (zero means no
// deadline, bounded only by ctx); no individual job has a deadline of its
// own. If ctx is cancelled or the
// deadline elapses while queries are still improving, Run stops the
// remaining jobs and returns the best specification found so far alongside
// a non-nil *errs.Incomplete, never as an error.
func (d *Driver) Run(ctx context.Context) (*ast.Specification, *errs.Incomplete, error) {
	ctx, span := d.tracer.StartRunSpan(ctx, d.RunID)
	defer span.End()
	log := d.log.WithField("run_id", d.RunID)

	start := time.Now()
	outcome := "ok"
	defer func() { d.metrics.RecordRunDuration(outcome, time.Since(start)) }()

	spec, err := d.loadSpec(d.cfg.SpecPath)
	if err != nil {
		outcome = "load_error"
		synthtrace.RecordError(span, err)
		return nil, nil, err
	}
	log = log.WithField("spec", spec.Name)
	log.Info("loaded specification")

	d.impl = New(spec, d.collab, Options{
		DeduplicateSubqueries: d.cfg.DeduplicateSubqueries,
		MaxConcurrentImprove:  d.cfg.MaxConcurrentImprove,
		Metrics:               d.metrics,
	})
	if err := d.impl.ConstructInitial(ctx); err != nil {
		outcome = "construct_error"
		synthtrace.RecordError(span, err)
		d.recordErr(err)
		return nil, nil, err
	}
	d.handlesPlanned = true
	log.Info("constructed initial implementation")

	incomplete := d.improveUnderBudget(ctx, log)

	assembled := d.impl.Assemble()
	if incomplete != nil {
		outcome = "incomplete"
	}
	synthtrace.RecordSuccess(span)
	return assembled, incomplete, nil
}

// improveUnderBudget starts improvement for every public query and waits
// for either ctx cancellation or d.cfg.PerQueryTimeout to elapse (applied
// once, to the whole improvement phase, not per query individually — a
// single shared deadline is simpler to reason about than N independent
// ones and matches how the teacher's own per-run timeout in
// pkg/engine/scheduler.go bounds a whole run rather than each unit within
// it). It always leaves every job stopped before returning.
func (d *Driver) improveUnderBudget(ctx context.Context, log *synthlog.Logger) *errs.Incomplete {
	if !d.handlesPlanned {
		log.Error("improveUnderBudget called before handle updates were planned")
		return &errs.Incomplete{Reason: "handle updates were not planned before improvement was attempted"}
	}

	improveCtx := ctx
	var cancel context.CancelFunc
	if d.cfg.PerQueryTimeout > 0 {
		improveCtx, cancel = context.WithTimeout(ctx, d.cfg.PerQueryTimeout)
		defer cancel()
	}

	if err := d.impl.Improve(improveCtx, nil); err != nil {
		log.WithError(err).Warn("improve returned an error; proceeding with best representations found so far")
	}

	stillRunning := d.waitForImprovement(improveCtx)

	if err := d.impl.StopImproving(); err != nil {
		log.WithError(err).Error("failed to cleanly stop all improvement jobs")
	}

	if len(stillRunning) == 0 {
		return nil
	}
	reason := "context cancelled"
	if d.cfg.PerQueryTimeout > 0 {
		reason = fmt.Sprintf("global timeout of %s elapsed", d.cfg.PerQueryTimeout)
	}
	return &errs.Incomplete{
		Reason:  fmt.Sprintf("%s with %d quer(y/ies) still improving", reason, len(stillRunning)),
		Queries: stillRunning,
	}
}

// waitForImprovement blocks until every improvement job has finished on its
// own or improveCtx is done, polling rather than trusting improveCtx.Done()
// alone: a job can finish (find no further improvement, or exhaust its
// search) well before any deadline or cancellation, and the driver must not
// sit idle waiting for a timeout that will never come. It returns the names
// of any queries still running when it stops waiting.
func (d *Driver) waitForImprovement(improveCtx context.Context) []string {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if len(d.impl.orchestrator.RunningNames()) == 0 {
			return nil
		}
		select {
		case <-improveCtx.Done():
			return d.impl.orchestrator.RunningNames()
		case <-ticker.C:
		}
	}
}

func (d *Driver) loadSpec(path string) (*ast.Specification, error) {
	if path == "" {
		return nil, fmt.Errorf("synthcfg.Config.SpecPath is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open spec %s: %w", path, err)
	}
	defer f.Close()
	spec, err := serial.DecodeSpecification(f)
	if err != nil {
		return nil, fmt.Errorf("decode spec %s: %w", path, err)
	}
	return spec, nil
}

// recordErr reports a classified driver error on the metrics collector, a
// no-op for errors that did not originate from pkg/synth/errs.
func (d *Driver) recordErr(err error) {
	var classified *errs.Error
	if e, ok := err.(*errs.Error); ok {
		classified = e
	}
	if classified != nil {
		d.metrics.RecordError(string(classified.Class), classified.Code)
	}
}

// Shutdown shuts down the tracer the Driver created.
func (d *Driver) Shutdown(ctx context.Context) error {
	return d.tracer.Shutdown(ctx)
}
