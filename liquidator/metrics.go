package liquidator

import (
	"errors"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the Prometheus metrics for the coordinator.
type Metrics struct {
	liquidationsTotal   *prometheus.CounterVec
	liquidationDuration prometheus.Histogram
}

// NewMetrics creates and registers the metrics for the coordinator.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		liquidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liquidator_liquidations_total",
			Help: "Total number of liquidation attempts, labeled by result.",
		}, []string{"result"}),
		liquidationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "liquidator_liquidation_duration_seconds",
			Help:    "Time taken to execute a liquidation, from price query to commit.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.liquidationsTotal, m.liquidationDuration)
	return m
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var engineErr *engine.Error
	if errors.As(err, &engineErr) {
		return engineErr.Error()
	}
	return "error"
}
