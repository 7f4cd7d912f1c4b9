package utils

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_ledger_operations_total",
		Help: "Ledger operations processed, labeled by operation and result",
	}, []string{"operation", "result"})

	ledgerOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_ledger_operation_duration_seconds",
		Help:    "Latency distribution of ledger operations",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	reconcileFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bank_identity_reconcile_failures_total",
		Help: "Compensating identity deletions that failed and need manual reconciliation",
	})
)

// RecordLedgerOperation записывает метрики операции со счетом.
// result - короткий код исхода: ok, insufficient_funds, not_found и т.д.
func RecordLedgerOperation(operation, result string, startTime time.Time) {
	ledgerOperationsTotal.WithLabelValues(operation, result).Inc()
	ledgerOperationDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
}

// RecordRequest записывает метрики HTTP запроса
func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordReconcileFailure отмечает неудачную компенсацию
func RecordReconcileFailure() {
	reconcileFailuresTotal.Inc()
}
