// Package synth ties together the nine components of the synthesis driver
// into one Implementation: the mutable working state of an in-progress
// translation from an abstract Specification to an efficient one, plus the
// Driver that walks a specification's queries through the full pipeline
// and exposes the result. Grounded on cozy's synthesis/impls.py
// Implementation class, which owns exactly the same fields (spec,
// concretization functions, query specs/impls, updates, handle updates)
// and the same operation sequence (add_query -> set_impl -> incrementalize
// -> cleanup -> code).
package synth

import (
	"context"
	"sync"

	"github.com/izgzhen/synthctl/pkg/ast"
	"github.com/izgzhen/synthctl/pkg/synth/collab"
	"github.com/izgzhen/synthctl/pkg/synth/ctxbuild"
	"github.com/izgzhen/synthctl/pkg/synth/errs"
	"github.com/izgzhen/synthctl/pkg/synth/gc"
	"github.com/izgzhen/synthctl/pkg/synth/handles"
	"github.com/izgzhen/synthctl/pkg/synth/improve"
	"github.com/izgzhen/synthctl/pkg/synth/install"
	"github.com/izgzhen/synthctl/pkg/synth/maint"
	"github.com/izgzhen/synthctl/pkg/synth/metrics"
	"github.com/izgzhen/synthctl/pkg/synth/oracle"
	"github.com/izgzhen/synthctl/pkg/synth/rename"
	"github.com/izgzhen/synthctl/pkg/synth/schedule"
	"github.com/izgzhen/synthctl/pkg/synth/subquery"
)

// Collaborators bundles every collaborator the driver does not implement
// itself.
type Collaborators struct {
	Solver     collab.Solver
	CostModel  collab.CostModel
	Improver   collab.Improver
	Derivative collab.Derivative
	Repairer   collab.WellFormednessRepairer
	Simplifier collab.Simplifier
	Handles    collab.HandleAnalyzer
}

// Options configures a new Implementation.
type Options struct {
	DeduplicateSubqueries bool
	MaxConcurrentImprove  int
	Metrics               *metrics.Metrics
}

type updateKey struct {
	varName string
	op      string
}

type handleUpdateKey struct {
	typeKey string
	op      string
}

// installRequest is one (query, rep, ret) tuple an improvement job hands
// off to the single install-consumer goroutine (spec.md 4.5: "a single
// bounded work queue receiving (query, rep, ret) tuples from all improver
// tasks").
type installRequest struct {
	ctx    context.Context
	q      *ast.Query
	rep    []ast.CVarBinding
	ret    ast.Exp
	result chan error
}

// Implementation is the mutable working state of one synthesis run. All of
// its exported methods are safe for concurrent use: the driver goroutine
// and any running improvement jobs (pkg/synth/improve) call back into it
// concurrently. The equivalence oracle is the one exception: it is only
// ever touched by the driver goroutine itself (during initial construction
// and handle planning) or by the single install-consumer goroutine (during
// improvement), never by more than one goroutine at a time, and so needs
// no lock of its own.
type Implementation struct {
	mu sync.Mutex

	spec          *ast.Specification
	abstractState []ast.EVar
	invariants    []ast.Exp

	querySpecs []*ast.Query
	queryImpls map[string]*ast.Query

	concretization []ast.CVarBinding
	updates        map[updateKey]ast.Stm
	handleUpdates  map[handleUpdateKey]maint.HandleUpdateEntry

	collab Collaborators

	oracle       *oracle.Oracle
	pipeline     *subquery.Pipeline
	installer    *install.Installer
	planner      *handles.Planner
	collector    *gc.Collector
	orchestrator *improve.Orchestrator
	assembler    *schedule.Assembler

	metrics *metrics.Metrics
	runCtx  context.Context

	// installCh/stopInstalls/closeInstallsOnce implement the single
	// install-consumer goroutine: every improvement job's SetImpl call
	// funnels through installCh instead of calling the installer directly,
	// so at any instant exactly one SetImpl is in progress and every
	// install is immediately followed by a GC sweep (spec.md 4.5, 4.6).
	installCh         chan installRequest
	stopInstalls      chan struct{}
	closeInstallsOnce sync.Once
}

// New builds an Implementation over spec with the given collaborators.
// The specification is expected to already be typechecked and desugared,
// matching cozy's construct_initial_implementation precondition.
func New(spec *ast.Specification, c Collaborators, opts Options) *Implementation {
	abstractState := spec.StateVarExps()
	m := opts.Metrics
	if m == nil {
		m, _ = metrics.New(metrics.Config{})
	}

	im := &Implementation{
		spec:          spec,
		abstractState: abstractState,
		invariants:    append([]ast.Exp(nil), spec.Assumptions...),
		queryImpls:    make(map[string]*ast.Query),
		updates:       make(map[updateKey]ast.Stm),
		handleUpdates: make(map[handleUpdateKey]maint.HandleUpdateEntry),
		collab:        c,
		metrics:       m,
		runCtx:        context.Background(),
		installCh:     make(chan installRequest),
		stopInstalls:  make(chan struct{}),
	}

	im.oracle = oracle.New(c.Solver, abstractState, im.invariants, opts.DeduplicateSubqueries)
	im.pipeline = &subquery.Pipeline{
		Oracle:     im.oracle,
		Repairer:   c.Repairer,
		Simplifier: c.Simplifier,
		Handles:    c.Handles,
		Spec:       spec,
		Registry:   im,
	}
	im.installer = &install.Installer{Oracle: im.oracle, Derivative: c.Derivative, Target: im}
	im.planner = &handles.Planner{Derivative: c.Derivative, Handles: c.Handles, Target: im}
	im.collector = &gc.Collector{Target: im}
	im.assembler = &schedule.Assembler{Target: im}
	maxConcurrent := opts.MaxConcurrentImprove
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	im.orchestrator = improve.New(maxConcurrent)

	go im.runInstallConsumer()

	return im
}

// runInstallConsumer is the single consumer of installCh: it pops one
// (query, rep, ret) tuple at a time, installs it, and runs a GC sweep
// immediately afterward, so representation installs from concurrent
// improvement jobs never race each other or the oracle's cache (spec.md
// 4.5, 4.6). It exits once StopImproving closes stopInstalls, by which
// point every job goroutine that could still send has already joined.
func (im *Implementation) runInstallConsumer() {
	for {
		select {
		case req := <-im.installCh:
			err := im.installer.SetImpl(req.ctx, req.q, req.rep, req.ret)
			if err == nil {
				im.runGC()
			}
			req.result <- err
		case <-im.stopInstalls:
			return
		}
	}
}

// ConstructInitial builds the naive, correct-but-inefficient starting
// implementation: every query in spec gets its initial representation
// installed, handle updates are planned, and unreachable state is swept.
// Grounded on impls.py's construct_initial_implementation.
func (im *Implementation) ConstructInitial(ctx context.Context) error {
	im.runCtx = ctx
	renamed := rename.RenameArgs(im.spec.Queries)
	for _, q := range renamed {
		if err := im.AddQuery(q); err != nil {
			return err
		}
	}
	if err := im.planner.PlanAll(ctx); err != nil {
		return err
	}
	im.runGC()
	return nil
}

// Improve starts (or restarts) a background improvement search for every
// currently installed query, per spec.md 4.5.
func (im *Implementation) Improve(ctx context.Context, hintsByQuery map[string][]ast.Exp) error {
	im.runCtx = ctx
	for _, q := range im.QuerySpecs() {
		q := q
		if im.orchestrator.Running(q.Name) {
			continue
		}
		job := improve.Job{
			Query:       q,
			Improver:    im.collab.Improver,
			Cost:        im.collab.CostModel,
			Target:      im,
			Assumptions: q.Assumptions,
			Hints:       hintsByQuery[q.Name],
			Binders:     im.abstractState,
		}
		if im.metrics != nil {
			im.metrics.RecordImproveJobStarted(q.Name)
		}
		if err := im.orchestrator.Start(ctx, q.Name, job); err != nil {
			return err
		}
	}
	return nil
}

// StopImproving stops every running improvement job, per spec.md 4.5's
// bounded-join shutdown sequence, then shuts down the install-consumer
// goroutine: by the time StopAll returns, every job that could still send
// to installCh has already joined, so nothing is left to consume.
func (im *Implementation) StopImproving() error {
	err := im.orchestrator.StopAll()
	im.closeInstallsOnce.Do(func() { close(im.stopInstalls) })
	return err
}

// Assemble produces the final, efficient specification.
func (im *Implementation) Assemble() *ast.Specification {
	return im.assembler.Assemble()
}

// runGC runs the reachability collector and stops any improvement job for
// a query it removes, so no goroutine keeps trying to improve a query that
// no longer exists.
func (im *Implementation) runGC() {
	before := make(map[string]bool)
	for _, q := range im.QuerySpecs() {
		before[q.Name] = true
	}
	varsBefore := len(im.Concretization())

	im.collector.Collect()

	after := make(map[string]bool)
	for _, q := range im.QuerySpecs() {
		after[q.Name] = true
	}
	pruned := 0
	for name := range before {
		if !after[name] {
			pruned++
			_ = im.orchestrator.Stop(name)
		}
	}
	if im.metrics != nil {
		im.metrics.RecordGCSweep(pruned, varsBefore-len(im.Concretization()))
	}
}

// ---- install.Target, subquery.Registry, handles.Target, gc.Target,
// ---- schedule.Target, improve.Target implementations ----

func (im *Implementation) Spec() *ast.Specification { return im.spec }

func (im *Implementation) AbstractState() []ast.EVar { return im.abstractState }

func (im *Implementation) Invariants() []ast.Exp { return im.invariants }

func (im *Implementation) Concretization() []ast.CVarBinding {
	im.mu.Lock()
	defer im.mu.Unlock()
	return append([]ast.CVarBinding(nil), im.concretization...)
}

func (im *Implementation) AddConcretization(v ast.EVar, meaning ast.Exp) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.concretization = append(im.concretization, ast.CVarBinding{Var: v, Meaning: meaning})
}

func (im *Implementation) RemoveConcretization(v ast.EVar) {
	im.mu.Lock()
	defer im.mu.Unlock()
	for i, b := range im.concretization {
		if b.Var.Name == v.Name {
			im.concretization = append(im.concretization[:i], im.concretization[i+1:]...)
			return
		}
	}
}

func (im *Implementation) QuerySpecs() []*ast.Query {
	im.mu.Lock()
	defer im.mu.Unlock()
	return append([]*ast.Query(nil), im.querySpecs...)
}

func (im *Implementation) QueryImpl(name string) (*ast.Query, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	q, ok := im.queryImpls[name]
	return q, ok
}

func (im *Implementation) QueryImpls() map[string]*ast.Query {
	im.mu.Lock()
	defer im.mu.Unlock()
	out := make(map[string]*ast.Query, len(im.queryImpls))
	for k, v := range im.queryImpls {
		out[k] = v
	}
	return out
}

func (im *Implementation) SetQueryImpl(name string, q *ast.Query) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.queryImpls[name] = q
}

func (im *Implementation) SetUpdate(v ast.EVar, opName string, stm ast.Stm) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.updates[updateKey{v.Name, opName}] = stm
}

func (im *Implementation) RemoveUpdate(v ast.EVar, opName string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	delete(im.updates, updateKey{v.Name, opName})
}

func (im *Implementation) Updates() []maint.UpdateEntry {
	im.mu.Lock()
	defer im.mu.Unlock()
	out := make([]maint.UpdateEntry, 0, len(im.updates))
	for k, stm := range im.updates {
		v, ok := im.lookupVar(k.varName)
		if !ok {
			continue
		}
		out = append(out, maint.UpdateEntry{Var: v, Op: k.op, Stm: stm})
	}
	return out
}

func (im *Implementation) lookupVar(name string) (ast.EVar, bool) {
	for _, b := range im.concretization {
		if b.Var.Name == name {
			return b.Var, true
		}
	}
	return ast.EVar{}, false
}

func (im *Implementation) SetHandleUpdate(t ast.Type, opName string, stm ast.Stm) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.handleUpdates[handleUpdateKey{t.Key(), opName}] = maint.HandleUpdateEntry{Type: t, Op: opName, Stm: stm}
}

func (im *Implementation) HandleUpdates() []maint.HandleUpdateEntry {
	im.mu.Lock()
	defer im.mu.Unlock()
	out := make([]maint.HandleUpdateEntry, 0, len(im.handleUpdates))
	for _, e := range im.handleUpdates {
		out = append(out, e)
	}
	return out
}

func (im *Implementation) Operations() []*ast.Operation { return im.spec.Operations }

// AddQuery registers q as a new query spec and installs its naive initial
// representation, recursing into the full install/subquery pipeline.
// Grounded on impls.py's Implementation.add_query.
func (im *Implementation) AddQuery(q *ast.Query) error {
	im.mu.Lock()
	im.querySpecs = append(im.querySpecs, q)
	im.mu.Unlock()

	ctxVars := ctxbuild.ForQuery(im.spec, im.abstractState, q)
	safeRet, err := im.collab.Repairer.Repair(q.Ret, ctxVars, meanings(im.Concretization()))
	if err != nil {
		return errs.NewCollaboratorFailure("repair_well_formedness", err)
	}
	rep, ret := rename.UnpackRepresentation(safeRet)
	if err := im.installer.SetImpl(im.runCtx, q, rep, ret); err != nil {
		return err
	}
	if im.metrics != nil {
		vis := "internal"
		if q.Vis == ast.Public {
			vis = "public"
		}
		im.metrics.RecordQueryInstalled(vis)
	}
	return nil
}

func (im *Implementation) IntroduceSubquery(ctx context.Context, subQ *ast.Query, usedBy ast.Stm, ctxVars *collab.RootCtx, extraAvailableState []ast.Exp) (ast.Stm, error) {
	before := len(im.QuerySpecs())
	stm, err := im.pipeline.Introduce(ctx, subQ, usedBy, ctxVars, extraAvailableState)
	if err != nil {
		return nil, err
	}
	if im.metrics != nil {
		outcome := "deduplicated"
		if len(im.QuerySpecs()) > before {
			outcome = "accepted"
		}
		im.metrics.RecordSubqueryIntroduced(outcome)
	}
	return stm, nil
}

// SetImpl installs rep/ret as q's representation. Exposed so
// pkg/synth/improve.Target is satisfied: every solution an improvement job
// finds is handed off to the single install-consumer goroutine rather than
// installed inline, so concurrent jobs never call into the installer (and
// the oracle it shares with the rest of the driver) at the same time, and
// every install is immediately followed by a GC sweep (spec.md 4.5, 4.6).
func (im *Implementation) SetImpl(ctx context.Context, q *ast.Query, rep []ast.CVarBinding, ret ast.Exp) error {
	result := make(chan error, 1)
	req := installRequest{ctx: ctx, q: q, rep: rep, ret: ret, result: result}
	select {
	case im.installCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	if im.metrics != nil {
		im.metrics.RecordImproveSolutionInstalled(q.Name)
	}
	return nil
}

func meanings(bindings []ast.CVarBinding) []ast.Exp {
	out := make([]ast.Exp, len(bindings))
	for i, b := range bindings {
		out[i] = ast.EStateVar{Arg: b.Var}
	}
	return out
}
