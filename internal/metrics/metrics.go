// Package metrics exposes Prometheus collectors for the make pass. Each compilation session
// owns its own registry so concurrent sessions in one process never collide.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Task kinds used as the "task" label
const (
	TaskFactorize = "factorize"
	TaskBuild     = "build"
)

// PassSummary is what a finished make pass reports
type PassSummary struct {
	Duration  time.Duration
	Added     int
	Reused    int
	Cleaned   int
	GraphSize int
	Failed    bool
}

// Metrics holds the collectors of one session. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	cacheHitsTotal  prometheus.Counter
	passesTotal     *prometheus.CounterVec
	passDuration    prometheus.Histogram
	modulesTotal    *prometheus.CounterVec
	graphModules    prometheus.Gauge
	diagnosticsSeen prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_makepass_tasks_total",
				Help: "Number of factorize and build tasks executed.",
			},
			[]string{"task"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bundler_makepass_task_duration_seconds",
				Help:    "Time taken by factorize and build tasks.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bundler_buildcache_hits_total",
				Help: "Number of builds answered by the build cache.",
			},
		),
		passesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_makepass_passes_total",
				Help: "Number of make passes by outcome.",
			},
			[]string{"outcome"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bundler_makepass_duration_seconds",
				Help:    "Time taken by a make pass.",
				Buckets: prometheus.DefBuckets,
			},
		),
		modulesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bundler_makepass_modules_total",
				Help: "Modules added, reused and cleaned by make passes.",
			},
			[]string{"change"},
		),
		graphModules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bundler_graph_modules",
				Help: "Number of modules in the graph after the last make pass.",
			},
		),
		diagnosticsSeen: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bundler_makepass_diagnostics_total",
				Help: "Number of diagnostics reported by make passes.",
			},
		),
	}

	m.registry.MustRegister(
		m.tasksTotal,
		m.taskDuration,
		m.cacheHitsTotal,
		m.passesTotal,
		m.passDuration,
		m.modulesTotal,
		m.graphModules,
		m.diagnosticsSeen,
	)
	return m
}

// Registry returns the registry holding the session's collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTask records one finished task
func (m *Metrics) ObserveTask(task string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(task).Inc()
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// CacheHit records a build answered by the cache
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// Diagnostics records n diagnostics
func (m *Metrics) Diagnostics(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.diagnosticsSeen.Add(float64(n))
}

// ObservePass records a finished make pass
func (m *Metrics) ObservePass(s PassSummary) {
	if m == nil {
		return
	}
	outcome := "success"
	if s.Failed {
		outcome = "failure"
	}
	m.passesTotal.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(s.Duration.Seconds())
	m.modulesTotal.WithLabelValues("added").Add(float64(s.Added))
	m.modulesTotal.WithLabelValues("reused").Add(float64(s.Reused))
	m.modulesTotal.WithLabelValues("cleaned").Add(float64(s.Cleaned))
	m.graphModules.Set(float64(s.GraphSize))
}
