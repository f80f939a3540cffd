// Package telemetry exposes Prometheus metrics for the retrieval core.
// A nil *Metrics is a valid no-op receiver so instrumentation never
// forces wiring in tests.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chaekko"

// Metrics holds the retrieval core's instruments.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageOutcomes *prometheus.CounterVec
	cacheOps      *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	fallbacks     *prometheus.CounterVec
	searches      *prometheus.CounterVec
}

// New creates the metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each retrieval stage run.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"stage"}),
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_outcomes_total",
			Help:      "Stage runs by terminal status.",
		}, []string{"stage", "status"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Cache lookups by cache name and hit/miss.",
		}, []string{"cache", "result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "fallbacks_applied_total",
			Help:      "Fallback policies applied, by trigger.",
		}, []string{"trigger"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests by terminal outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.stageDuration, m.stageOutcomes, m.cacheOps,
		m.breakerState, m.fallbacks, m.searches,
	)
	return m
}

// Registry exposes the registry for an exporter endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records one stage run.
func (m *Metrics) ObserveStage(stage, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	m.stageOutcomes.WithLabelValues(stage, status).Inc()
}

// ObserveCache records one cache lookup.
func (m *Metrics) ObserveCache(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOps.WithLabelValues(cache, result).Inc()
}

// SetBreakerState records a breaker state transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveFallback records an applied fallback policy.
func (m *Metrics) ObserveFallback(trigger string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(trigger).Inc()
}

// ObserveSearch records a finished search request.
func (m *Metrics) ObserveSearch(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}
