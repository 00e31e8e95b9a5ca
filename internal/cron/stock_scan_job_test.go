package cron

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeDashboard struct {
	dash *reports.Dashboard
	err  error
}

func (f fakeDashboard) Dashboard(context.Context) (*reports.Dashboard, error) {
	return f.dash, f.err
}

func TestStockScanJobSetsGaugesAndWarns(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: &buf})
	reg := prometheus.NewRegistry()
	source := fakeDashboard{dash: &reports.Dashboard{
		TotalItems:      5,
		LowStockCount:   1,
		OutOfStockCount: 1,
		LowStockItems:   []inventory.ItemDTO{{Name: "Gloves"}, {Name: "Goggles"}},
	}}
	job, err := NewStockScanJob(logg, source, metrics.NewStockMetrics(reg))
	if err != nil {
		t.Fatalf("NewStockScanJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := `
# HELP ppetrack_stock_items Inventory items by stock status at the last scan.
# TYPE ppetrack_stock_items gauge
ppetrack_stock_items{status="in_stock"} 3
ppetrack_stock_items{status="low_stock"} 1
ppetrack_stock_items{status="out_of_stock"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "ppetrack_stock_items"); err != nil {
		t.Fatalf("unexpected gauges: %v", err)
	}
	if !strings.Contains(buf.String(), "items need restocking") || !strings.Contains(buf.String(), "Goggles") {
		t.Fatalf("missing restock warning in log output: %s", buf.String())
	}
}

func TestStockScanJobPropagatesError(t *testing.T) {
	job, err := NewStockScanJob(testLogger(), fakeDashboard{err: errors.New("db down")}, nil)
	if err != nil {
		t.Fatalf("NewStockScanJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
