package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records outcomes of scheduled maintenance jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ppetrack_cron_job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ppetrack_cron_job_runs_total",
		Help: "Scheduled job executions by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(duration, runs)
	return &CronJobMetrics{duration: duration, runs: runs}
}

// ObserveRun records one execution; a nil err counts as "ok".
func (c *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if c == nil || c.duration == nil {
		return
	}
	job = normalizeLabel(job)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	c.runs.WithLabelValues(job, outcome).Inc()
}

// StockMetrics exposes the latest stock level snapshot.
type StockMetrics struct {
	items *prometheus.GaugeVec
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	items := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ppetrack_stock_items",
		Help: "Inventory items by stock status at the last scan.",
	}, []string{"status"})
	reg.MustRegister(items)
	return &StockMetrics{items: items}
}

// SetStatusCount replaces the gauge for one stock status.
func (m *StockMetrics) SetStatusCount(status string, count int) {
	if m == nil || m.items == nil {
		return
	}
	m.items.WithLabelValues(normalizeLabel(status)).Set(float64(count))
}
