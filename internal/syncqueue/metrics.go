package syncqueue

import "github.com/prometheus/client_golang/prometheus"

// Metrics collects the sync observability signals. Pending is the primary
// indicator of local writes the remote store has not yet acknowledged.
type Metrics struct {
	Pending       prometheus.Gauge
	Enqueued      prometheus.Counter
	Acked         prometheus.Counter
	DrainAttempts prometheus.Counter
	DrainFailures prometheus.Counter
}

// NewMetrics builds and registers the queue metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopdesk_queue_pending",
			Help: "Current number of mutations awaiting remote acknowledgment",
		}),
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopdesk_queue_enqueued_total",
			Help: "Total number of mutations enqueued",
		}),
		Acked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopdesk_queue_acked_total",
			Help: "Total number of mutations acknowledged by the remote store",
		}),
		DrainAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopdesk_queue_drain_attempts_total",
			Help: "Total number of drain rounds attempted",
		}),
		DrainFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopdesk_queue_drain_failures_total",
			Help: "Total number of drain rounds that stopped on a remote failure",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Pending, m.Enqueued, m.Acked, m.DrainAttempts, m.DrainFailures)
	}
	return m
}
