package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the collector.
type Metrics struct {
	BatchesReceived prometheus.Counter
	EventsIngested  prometheus.Counter
	EventsDuplicate prometheus.Counter
	EventsRejected  prometheus.Counter
	PublishFailures prometheus.Counter
	BatchSize       prometheus.Histogram
}

// New registers collector metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BatchesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_collector_batches_received_total",
			Help: "Total number of event batches received",
		}),
		EventsIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_collector_events_ingested_total",
			Help: "Total number of new events stored",
		}),
		EventsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_collector_events_duplicate_total",
			Help: "Total number of redelivered events skipped by id",
		}),
		EventsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_collector_events_rejected_total",
			Help: "Total number of events that failed validation",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "blaze_collector_publish_failures_total",
			Help: "Total number of batches stored but not streamed",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "blaze_collector_batch_size",
			Help:    "Number of events per received batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) ObserveBatch(size int) {
	m.BatchesReceived.Inc()
	m.BatchSize.Observe(float64(size))
}

func (m *Metrics) AddIngested(n int) {
	m.EventsIngested.Add(float64(n))
}

func (m *Metrics) AddDuplicates(n int) {
	m.EventsDuplicate.Add(float64(n))
}

func (m *Metrics) AddRejected(n int) {
	m.EventsRejected.Add(float64(n))
}

func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}
