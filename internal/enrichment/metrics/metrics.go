package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification episodes and enrichment
// steps.
type Metrics struct {
	// Terminal attempt statuses (VERIFIED, FLAGGED, FAILED) by method
	EpisodesTotal *prometheus.CounterVec

	// Report outcomes by identifier type (added, exists, not_available, error)
	OutcomesTotal *prometheus.CounterVec

	// Step latency by step name
	StepDuration *prometheus.HistogramVec

	// Episodes currently running in the background
	EpisodesInFlight prometheus.Gauge

	// Attempts marked abandoned at startup
	AbandonedTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EpisodesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_verification_episodes_total",
			Help: "Verification episodes by terminal status and method",
		}, []string{"status", "method"}),

		OutcomesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyb_enrichment_outcomes_total",
			Help: "Enrichment report entries by identifier type and outcome",
		}, []string{"type", "outcome"}),

		StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyb_enrichment_step_duration_seconds",
			Help:    "Duration of enrichment steps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		}, []string{"step"}),

		EpisodesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kyb_verification_episodes_in_flight",
			Help: "Background verification episodes currently running",
		}),

		AbandonedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyb_verification_abandoned_total",
			Help: "PENDING attempts marked abandoned on startup",
		}),
	}
}

func (m *Metrics) IncrementEpisode(status, method string) {
	if m != nil {
		m.EpisodesTotal.WithLabelValues(status, method).Inc()
	}
}

func (m *Metrics) IncrementOutcome(idType, outcome string) {
	if m != nil {
		m.OutcomesTotal.WithLabelValues(idType, outcome).Inc()
	}
}

func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m != nil {
		m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
	}
}

func (m *Metrics) EpisodeStarted() {
	if m != nil {
		m.EpisodesInFlight.Inc()
	}
}

func (m *Metrics) EpisodeFinished() {
	if m != nil {
		m.EpisodesInFlight.Dec()
	}
}

func (m *Metrics) AddAbandoned(n int) {
	if m != nil {
		m.AbandonedTotal.Add(float64(n))
	}
}
