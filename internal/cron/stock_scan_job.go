package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
)

type dashboardSource interface {
	Dashboard(ctx context.Context) (*reports.Dashboard, error)
}

// StockScanJob publishes stock status gauges and logs a warning naming every
// item at or below its threshold.
type StockScanJob struct {
	logg    *logger.Logger
	reports dashboardSource
	metrics *metrics.StockMetrics
}

func NewStockScanJob(logg *logger.Logger, source dashboardSource, m *metrics.StockMetrics) (*StockScanJob, error) {
	if logg == nil || source == nil {
		return nil, errors.New("logger and dashboard source required")
	}
	return &StockScanJob{logg: logg, reports: source, metrics: m}, nil
}

func (j *StockScanJob) Name() string { return "stock-scan" }

func (j *StockScanJob) Run(ctx context.Context) error {
	dash, err := j.reports.Dashboard(ctx)
	if err != nil {
		return fmt.Errorf("load dashboard: %w", err)
	}
	inStock := dash.TotalItems - dash.LowStockCount - dash.OutOfStockCount
	j.metrics.SetStatusCount(string(enums.StockInStock), inStock)
	j.metrics.SetStatusCount(string(enums.StockLowStock), dash.LowStockCount)
	j.metrics.SetStatusCount(string(enums.StockOutOfStock), dash.OutOfStockCount)

	if len(dash.LowStockItems) == 0 {
		return nil
	}
	names := make([]string, 0, len(dash.LowStockItems))
	for _, item := range dash.LowStockItems {
		names = append(names, item.Name)
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"low_stock":    dash.LowStockCount,
		"out_of_stock": dash.OutOfStockCount,
		"items":        names,
	}), "items need restocking")
	return nil
}
