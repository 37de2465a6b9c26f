package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Lifecycle operation latency by operation and outcome (ok, error code)
	OperationDuration *prometheus.HistogramVec

	// Status transitions by event type and target status
	Transitions *prometheus.CounterVec

	// Submission failures persisted as ERROR, by gateway category
	SubmitFailures *prometheus.CounterVec

	// Poller runs and the consult outcomes they produced
	PollerRuns      *prometheus.CounterVec
	PollerConsulted *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return &Metrics{
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "esocial_event_operation_duration_seconds",
			Help:    "Duration of compliance lifecycle operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "outcome"}),

		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "esocial_event_transitions_total",
			Help: "Total compliance event status transitions by type and target status",
		}, []string{"event_type", "status"}),

		SubmitFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "esocial_event_submit_failures_total",
			Help: "Total failed submissions recorded as ERROR, by gateway category",
		}, []string{"category"}),

		PollerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "esocial_poller_runs_total",
			Help: "Total consult poller runs by result",
		}, []string{"result"}), // result: "ok", "error", "cancelled"

		PollerConsulted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "esocial_poller_consulted_total",
			Help: "Total events consulted by the poller, by resulting status or error",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.OperationDuration.WithLabelValues(operation, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncTransition(eventType, status string) {
	if m != nil {
		m.Transitions.WithLabelValues(eventType, status).Inc()
	}
}

func (m *Metrics) IncSubmitFailure(category string) {
	if m != nil {
		m.SubmitFailures.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncPollerRun(result string) {
	if m != nil {
		m.PollerRuns.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncPollerConsulted(outcome string) {
	if m != nil {
		m.PollerConsulted.WithLabelValues(outcome).Inc()
	}
}
