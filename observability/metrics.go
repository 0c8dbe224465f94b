package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

type ledgerMetrics struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	settled      prometheus.Counter
	settlements  prometheus.Counter
	escrowed     prometheus.Counter
	minted       prometheus.Counter
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC method activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "oto",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by rate limits or quotas.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records one handled request. code is the JSON-RPC error code, or
// zero on success.
func (m *moduleMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit" or "quota_exceeded".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Ledger returns the registry tracking applied transactions and token flows.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Transactions processed segmented by operation and error kind.",
			}, []string{"op", "kind"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "oto",
				Subsystem: "ledger",
				Name:      "transaction_duration_seconds",
				Help:      "Time spent applying a transaction including lock waits.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "market",
				Name:      "settled_units_total",
				Help:      "Token units paid from escrow to providers.",
			}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "market",
				Name:      "settlements_total",
				Help:      "Transfer proofs accepted.",
			}),
			escrowed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "market",
				Name:      "escrowed_units_total",
				Help:      "Token units moved into purchase request escrow.",
			}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "oto",
				Subsystem: "token",
				Name:      "minted_units_total",
				Help:      "Token units minted through claims and admin mints.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transactions,
			ledgerRegistry.duration,
			ledgerRegistry.settled,
			ledgerRegistry.settlements,
			ledgerRegistry.escrowed,
			ledgerRegistry.minted,
		)
	})
	return ledgerRegistry
}

// RecordTransaction counts one processed transaction. kind is empty on success.
func (m *ledgerMetrics) RecordTransaction(op, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if kind == "" {
		kind = "ok"
	}
	m.transactions.WithLabelValues(op, kind).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *ledgerMetrics) RecordSettlement(amount uint64) {
	if m == nil {
		return
	}
	m.settlements.Inc()
	m.settled.Add(float64(amount))
}

func (m *ledgerMetrics) RecordEscrow(amount uint64) {
	if m == nil {
		return
	}
	m.escrowed.Add(float64(amount))
}

func (m *ledgerMetrics) RecordMint(amount uint64) {
	if m == nil {
		return
	}
	m.minted.Add(float64(amount))
}
