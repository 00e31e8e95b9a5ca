package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded for stock transactions.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)

// LedgerMetrics tracks usage and restock transactions.
type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	retries      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppetrack_ledger_transactions_total",
		Help: "Stock transactions by operation and outcome.",
	}, []string{"op", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ppetrack_ledger_tx_duration_seconds",
		Help:    "Duration of stock transactions including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppetrack_ledger_tx_retries_total",
		Help: "Stock transaction attempts retried after lock contention.",
	}, []string{"op"})
	reg.MustRegister(transactions, duration, retries)
	return &LedgerMetrics{
		transactions: transactions,
		duration:     duration,
		retries:      retries,
	}
}

// ObserveTransaction records the outcome and latency of one transaction.
func (m *LedgerMetrics) ObserveTransaction(op, outcome string, elapsed time.Duration) {
	if m == nil || m.transactions == nil {
		return
	}
	op = normalizeLabel(op)
	m.transactions.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncRetry counts a retried attempt.
func (m *LedgerMetrics) IncRetry(op string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(op)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
