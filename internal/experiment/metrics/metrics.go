package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for experiment assignment.
type Metrics struct {
	Enrollments         *prometheus.CounterVec
	NotEnrolled         *prometheus.CounterVec
	PersistenceFailures prometheus.Counter
}

// New registers assignment metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blaze_experiment_enrollments_total",
			Help: "Total number of new assignments created, by experiment and variant",
		}, []string{"experiment", "variant"}),
		NotEnrolled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "blaze_experiment_not_enrolled_total",
			Help: "Total number of evaluations that fell outside traffic allocation",
		}, []string{"experiment"}),
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_experiment_assignment_persist_failures_total",
			Help: "Total number of assignments kept in memory because the store write failed",
		}),
	}
}

// IncEnrollment increments the enrollment counter.
func (m *Metrics) IncEnrollment(experiment, variant string) {
	m.Enrollments.WithLabelValues(experiment, variant).Inc()
}

// IncNotEnrolled increments the not-enrolled counter.
func (m *Metrics) IncNotEnrolled(experiment string) {
	m.NotEnrolled.WithLabelValues(experiment).Inc()
}

// IncPersistenceFailures increments the persistence failure counter.
func (m *Metrics) IncPersistenceFailures() {
	m.PersistenceFailures.Inc()
}
