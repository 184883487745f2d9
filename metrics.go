package fundkrawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values of fundkrawler_outcomes_total.
const (
	OutcomeDone      = "done"
	OutcomeRetry     = "retry"
	OutcomeAbandoned = "abandoned"
)

// Metrics groups the collectors of a crawl. A nil *Metrics records nothing.
type Metrics struct {
	attempts      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundkrawler_attempts_total",
			Help: "Dispatch attempts per variant.",
		}, []string{"variant"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundkrawler_outcomes_total",
			Help: "Attempt outcomes per variant.",
		}, []string{"variant", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundkrawler_fetch_duration_seconds",
			Help:    "Duration of theme feed requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"variant"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.outcomes, m.fetchDuration)
	}
	return m
}

func (m *Metrics) observeAttempt(variant Variant) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(string(variant)).Inc()
}

func (m *Metrics) observeOutcome(variant Variant, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(variant), outcome).Inc()
}

func (m *Metrics) observeFetch(variant Variant, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(string(variant)).Observe(duration.Seconds())
}
