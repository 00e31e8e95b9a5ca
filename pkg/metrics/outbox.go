package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts change-feed deliveries.
type OutboxMetrics struct {
	published *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppetrack_outbox_published_total",
		Help: "Outbox rows delivered to a sink by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(published)
	return &OutboxMetrics{published: published}
}

// IncPublished records one delivery attempt; outcome is "ok" or "failed".
func (m *OutboxMetrics) IncPublished(outcome string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(outcome)).Inc()
}
