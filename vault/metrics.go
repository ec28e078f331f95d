package vault

import (
	"errors"
	"time"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
	opBorrow   = "borrow"
)

// Metrics holds all the Prometheus metrics for the vault.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics for the vault.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Total number of vault operations, labeled by operation and result.",
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_operation_duration_seconds",
			Help:    "Time taken to execute a vault operation, including the ledger commit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration)
	return m
}

// observe records one finished operation. The result label is "ok", the engine
// error message, or "error".
func (m *Metrics) observe(op string, start time.Time, errp *error) {
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.operationsTotal.WithLabelValues(op, resultLabel(*errp)).Inc()
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
