package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for compliance audit publishing.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "esocial_audit_compliance_emitted_total",
			Help: "Total number of compliance audit records persisted, by action",
		}, []string{"action"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "esocial_audit_compliance_persist_failures_total",
			Help: "Total number of compliance audit records that failed to persist",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "esocial_audit_compliance_persist_duration_seconds",
			Help:    "Time spent persisting a compliance audit record",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncEventsEmitted(action string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(action).Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
}
