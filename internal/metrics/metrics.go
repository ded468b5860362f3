// Package metrics holds the Prometheus collectors of the chain and the
// HTTP server. Collectors register with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stratagem"

var (
	// transactions counts submitted transactions.
	// Labels: entry (top-level execute message), status (ok, failed)
	transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "transactions_total",
		Help:      "Transactions by top-level entry and status",
	}, []string{"entry", "status"})

	// transactionLatency measures a transaction from begin to commit or
	// rollback.
	transactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "transaction_duration_seconds",
		Help:      "Transaction latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"entry"})

	// messages counts dispatched messages.
	// Labels: kind (bank, wasm, deposit)
	messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "messages_total",
		Help:      "Dispatched messages by kind",
	}, []string{"kind"})

	// strategyErrors counts failed strategy calls by runtime error code.
	strategyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strategy",
		Name:      "errors_total",
		Help:      "Failed strategy calls by error code",
	}, []string{"code"})

	// queueDepth is the number of submissions waiting for the chain loop.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "queue_depth",
		Help:      "Submissions waiting for the chain loop",
	})

	// httpRequests counts API requests.
	// Labels: route (chi route pattern), code (HTTP status)
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "code"})

	// rateLimited counts requests rejected by the keeper rate limit.
	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the execute rate limit",
	})
)

// RecordTransaction records a finished transaction.
func RecordTransaction(entry, status string, durationSec float64) {
	transactions.WithLabelValues(entry, status).Inc()
	transactionLatency.WithLabelValues(entry).Observe(durationSec)
}

// RecordMessage records one dispatched message.
func RecordMessage(kind string) {
	messages.WithLabelValues(kind).Inc()
}

// RecordStrategyError records a failed strategy call. Empty codes are
// recorded as "other".
func RecordStrategyError(code string) {
	if code == "" {
		code = "other"
	}
	strategyErrors.WithLabelValues(code).Inc()
}

// SetQueueDepth records the current submission backlog.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// RecordHTTPRequest records one API request.
func RecordHTTPRequest(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func RecordRateLimited() {
	rateLimited.Inc()
}
