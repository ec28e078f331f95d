package differ

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the differ.
type Metrics struct {
	diffDuration prometheus.Histogram
	poolsChanged prometheus.Histogram
	diffsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the differ.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "differ_diff_duration_seconds",
			Help:    "Total time taken to compute the state diff.",
			Buckets: prometheus.DefBuckets,
		}),
		poolsChanged: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "differ_pools_changed",
			Help:    "Number of pools added or updated per diff.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		diffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "differ_diffs_total",
			Help: "Total number of diffs computed, labeled by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.diffDuration, m.poolsChanged, m.diffsTotal)
	return m
}
