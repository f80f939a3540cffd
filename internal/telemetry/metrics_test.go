package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	// None of these may panic.
	m.ObserveStage("lexical", "ok", time.Millisecond)
	m.ObserveCache("serp", true)
	m.SetBreakerState("vector", 1)
	m.ObserveFallback("onZeroResults")
	m.ObserveSearch("ok")

	if m.Registry() != nil {
		t.Error("nil metrics must expose no registry")
	}
}

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.ObserveStage("lexical", "ok", 10*time.Millisecond)
	m.ObserveStage("lexical", "ok", 20*time.Millisecond)
	m.ObserveCache("serp", true)
	m.ObserveCache("serp", false)
	m.ObserveFallback("onZeroResults")
	m.ObserveSearch("ok")

	if got := testutil.ToFloat64(m.stageOutcomes.WithLabelValues("lexical", "ok")); got != 2 {
		t.Errorf("stage outcomes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheOps.WithLabelValues("serp", "hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fallbacks.WithLabelValues("onZeroResults")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
}

func TestBreakerGauge(t *testing.T) {
	m := New()

	m.SetBreakerState("vector", 1)
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("vector")); got != 1 {
		t.Errorf("breaker gauge = %v, want 1", got)
	}
	m.SetBreakerState("vector", 0)
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("vector")); got != 0 {
		t.Errorf("breaker gauge = %v, want 0", got)
	}
}
