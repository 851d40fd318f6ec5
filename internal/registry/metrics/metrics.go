package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"kyb/pkg/platform/circuit"
)

// Metrics provides observability for registry lookups.
type Metrics struct {
	// Lookup latencies by source and outcome kind (found, not_found,
	// multiple_matches, error)
	LookupLatency *prometheus.HistogramVec

	// Provider errors by source and category
	LookupErrors *prometheus.CounterVec

	// Read-through cache hits and misses by source
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Circuit breaker transitions by source and new state
	BreakerTransitions *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		LookupLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyb_registry_lookup_duration_seconds",
			Help:    "Duration of registry lookups by source and outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"source", "outcome"}),

		LookupErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_registry_lookup_errors_total",
			Help: "Registry lookup failures by source and error category",
		}, []string{"source", "category"}),

		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_registry_cache_hits_total",
			Help: "Registry cache hits by source",
		}, []string{"source"}),

		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_registry_cache_misses_total",
			Help: "Registry cache misses by source",
		}, []string{"source"}),

		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_registry_breaker_transitions_total",
			Help: "Registry circuit breaker transitions by source and new state",
		}, []string{"source", "state"}),
	}
}

func (m *Metrics) ObserveLookup(source, outcome string, d time.Duration) {
	if m != nil {
		m.LookupLatency.WithLabelValues(source, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementError(source, category string) {
	if m != nil {
		m.LookupErrors.WithLabelValues(source, category).Inc()
	}
}

func (m *Metrics) IncrementCacheHit(source string) {
	if m != nil {
		m.CacheHits.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncrementCacheMiss(source string) {
	if m != nil {
		m.CacheMisses.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncrementBreakerTransition(source string, state circuit.State) {
	if m != nil && m.BreakerTransitions != nil {
		m.BreakerTransitions.WithLabelValues(source, string(state)).Inc()
	}
}
