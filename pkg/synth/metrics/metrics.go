// Package metrics exposes Prometheus instrumentation for the synthesis
// driver, grounded on the teacher's pkg/telemetry/metrics.go (same
// registry-per-instance construction, same nil-check-then-noop guard so a
// disabled collector costs nothing, same promhttp.HandlerFor wiring).
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls whether metrics are collected at all and where they are
// served.
type Config struct {
	Enabled       bool
	Namespace     string
	ListenAddress string
	Path          string
}

// Metrics collects Prometheus instrumentation for one driver instance.
type Metrics struct {
	config Config

	queriesInstalled   *prometheus.CounterVec
	subqueriesIntroduced *prometheus.CounterVec
	oracleCacheHits    prometheus.Counter
	oracleCacheMisses  prometheus.Counter
	oracleSolverCalls  prometheus.Counter

	improveJobsStarted   *prometheus.CounterVec
	improveJobsCompleted *prometheus.CounterVec
	improveSolutionsFound *prometheus.CounterVec
	activeImproveJobs    prometheus.Gauge

	gcSweeps        prometheus.Counter
	gcQueriesPruned prometheus.Counter
	gcVarsPruned    prometheus.Counter

	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	runDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New builds a Metrics collector. A disabled config returns a no-op
// instance whose methods are all safe to call.
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		queriesInstalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queries_installed_total",
			Help: "Total number of queries given a concrete implementation",
		}, []string{"visibility"}),
		subqueriesIntroduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "subqueries_introduced_total",
			Help: "Total number of subqueries accepted into the query registry",
		}, []string{"outcome"}),
		oracleCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "oracle_cache_hits_total",
			Help: "Total number of equivalence-oracle cache hits",
		}),
		oracleCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "oracle_cache_misses_total",
			Help: "Total number of equivalence-oracle cache misses",
		}),
		oracleSolverCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "oracle_solver_calls_total",
			Help: "Total number of solver.Valid calls made by the equivalence oracle",
		}),

		improveJobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "improve_jobs_started_total",
			Help: "Total number of improvement jobs started",
		}, []string{"query"}),
		improveJobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "improve_jobs_completed_total",
			Help: "Total number of improvement jobs that exited",
		}, []string{"query", "outcome"}),
		improveSolutionsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "improve_solutions_installed_total",
			Help: "Total number of strictly cheaper solutions installed",
		}, []string{"query"}),
		activeImproveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "improve_jobs_active",
			Help: "Current number of running improvement jobs",
		}),

		gcSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_sweeps_total",
			Help: "Total number of reachability GC passes run",
		}),
		gcQueriesPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_queries_pruned_total",
			Help: "Total number of queries removed by GC",
		}),
		gcVarsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "gc_vars_pruned_total",
			Help: "Total number of concrete state variables removed by GC",
		}),

		errorsByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_by_class_total",
			Help: "Total number of driver errors by class",
		}, []string{"class"}),
		errorsByCode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_by_code_total",
			Help: "Total number of driver errors by code",
		}, []string{"code"}),

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:    "Duration of a full synthesis run",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.queriesInstalled,
		m.subqueriesIntroduced,
		m.oracleCacheHits,
		m.oracleCacheMisses,
		m.oracleSolverCalls,
		m.improveJobsStarted,
		m.improveJobsCompleted,
		m.improveSolutionsFound,
		m.activeImproveJobs,
		m.gcSweeps,
		m.gcQueriesPruned,
		m.gcVarsPruned,
		m.errorsByClass,
		m.errorsByCode,
		m.runDuration,
	)

	return m, nil
}

func (m *Metrics) RecordQueryInstalled(visibility string) {
	if m.queriesInstalled == nil {
		return
	}
	m.queriesInstalled.WithLabelValues(visibility).Inc()
}

func (m *Metrics) RecordSubqueryIntroduced(outcome string) {
	if m.subqueriesIntroduced == nil {
		return
	}
	m.subqueriesIntroduced.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordOracleCacheHit() {
	if m.oracleCacheHits == nil {
		return
	}
	m.oracleCacheHits.Inc()
}

func (m *Metrics) RecordOracleCacheMiss() {
	if m.oracleCacheMisses == nil {
		return
	}
	m.oracleCacheMisses.Inc()
	m.oracleSolverCalls.Add(2)
}

func (m *Metrics) RecordImproveJobStarted(query string) {
	if m.improveJobsStarted == nil {
		return
	}
	m.improveJobsStarted.WithLabelValues(query).Inc()
	m.activeImproveJobs.Inc()
}

func (m *Metrics) RecordImproveJobCompleted(query, outcome string) {
	if m.improveJobsCompleted == nil {
		return
	}
	m.improveJobsCompleted.WithLabelValues(query, outcome).Inc()
	m.activeImproveJobs.Dec()
}

func (m *Metrics) RecordImproveSolutionInstalled(query string) {
	if m.improveSolutionsFound == nil {
		return
	}
	m.improveSolutionsFound.WithLabelValues(query).Inc()
}

func (m *Metrics) RecordGCSweep(queriesPruned, varsPruned int) {
	if m.gcSweeps == nil {
		return
	}
	m.gcSweeps.Inc()
	m.gcQueriesPruned.Add(float64(queriesPruned))
	m.gcVarsPruned.Add(float64(varsPruned))
}

func (m *Metrics) RecordError(class, code string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(class).Inc()
	if code != "" {
		m.errorsByCode.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) RecordRunDuration(outcome string, d time.Duration) {
	if m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Handler returns an HTTP handler serving the metrics in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer starts an HTTP server exposing the metrics endpoint. It is a
// no-op when metrics are disabled.
func (m *Metrics) StartServer() error {
	if !m.config.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	return nil
}
