package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveMetrics tracks live subscription fan-out.
type LiveMetrics struct {
	subscribers *prometheus.GaugeVec
	lagged      *prometheus.CounterVec
}

func NewLiveMetrics(reg prometheus.Registerer) *LiveMetrics {
	if reg == nil {
		return &LiveMetrics{}
	}
	subscribers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ppetrack_live_subscribers",
		Help: "Open live subscriptions per collection.",
	}, []string{"collection"})
	lagged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppetrack_live_lagged_total",
		Help: "Subscriptions closed because their buffer overflowed.",
	}, []string{"collection"})
	reg.MustRegister(subscribers, lagged)
	return &LiveMetrics{subscribers: subscribers, lagged: lagged}
}

func (m *LiveMetrics) SubscriberAdded(collection string) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.WithLabelValues(normalizeLabel(collection)).Inc()
}

func (m *LiveMetrics) SubscriberRemoved(collection string) {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.WithLabelValues(normalizeLabel(collection)).Dec()
}

func (m *LiveMetrics) IncLagged(collection string) {
	if m == nil || m.lagged == nil {
		return
	}
	m.lagged.WithLabelValues(normalizeLabel(collection)).Inc()
}
