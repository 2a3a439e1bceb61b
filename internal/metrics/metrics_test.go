package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTask(t *testing.T) {
	m := New()
	m.ObserveTask(TaskFactorize, 10*time.Millisecond)
	m.ObserveTask(TaskFactorize, 20*time.Millisecond)
	m.ObserveTask(TaskBuild, time.Millisecond)

	if got := testutil.ToFloat64(m.tasksTotal.WithLabelValues(TaskFactorize)); got != 2 {
		t.Errorf("factorize tasks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tasksTotal.WithLabelValues(TaskBuild)); got != 1 {
		t.Errorf("build tasks = %v, want 1", got)
	}
}

func TestObservePass(t *testing.T) {
	m := New()
	m.ObservePass(PassSummary{Duration: time.Second, Added: 4, Reused: 1, GraphSize: 4})
	m.ObservePass(PassSummary{Duration: time.Second, Cleaned: 1, GraphSize: 3, Failed: true})

	if got := testutil.ToFloat64(m.passesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("successful passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.passesTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.modulesTotal.WithLabelValues("added")); got != 4 {
		t.Errorf("added = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.graphModules); got != 3 {
		t.Errorf("graph modules = %v, want 3", got)
	}
}

func TestRegistryIsPerInstance(t *testing.T) {
	a, b := New(), New()
	a.CacheHit()

	if got := testutil.ToFloat64(b.cacheHitsTotal); got != 0 {
		t.Errorf("second instance saw %v cache hits", got)
	}
	if n, err := testutil.GatherAndCount(a.Registry(), "bundler_buildcache_hits_total"); err != nil || n != 1 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTask(TaskBuild, time.Second)
	m.CacheHit()
	m.Diagnostics(3)
	m.ObservePass(PassSummary{})
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}
