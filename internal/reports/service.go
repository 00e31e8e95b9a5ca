package reports

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

// Service projects the event logs into report views.
type Service interface {
	Events(ctx context.Context, q Query) (*EventsPage, error)
	Summary(ctx context.Context, q Query) (*Summary, error)
	Dashboard(ctx context.Context) (*Dashboard, error)
	Export(ctx context.Context, q Query, w io.Writer) error
}

type itemLister interface {
	List(ctx context.Context) ([]models.Item, error)
}

type service struct {
	repo  *Repository
	items itemLister
}

func NewService(repo *Repository, items itemLister) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if items == nil {
		return nil, fmt.Errorf("item lister required")
	}
	return &service{repo: repo, items: items}, nil
}

func (s *service) Events(ctx context.Context, q Query) (*EventsPage, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(q.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.LimitWithBuffer(q.Limit)
	page := &EventsPage{Dimension: q.Dimension}

	if q.Dimension.Purchases() {
		rows, err := s.repo.PurchaseEvents(ctx, q.ID, q.Range, limit, cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query purchase events")
		}
		built := pagination.BuildPage(purchaseDTOs(rows), q.Limit, func(d ledger.PurchaseEventDTO) pagination.Cursor {
			return pagination.Cursor{At: d.PurchaseTimestamp, ID: d.ID}
		})
		page.Purchases, page.NextCursor = built.Items, built.NextCursor
		return page, nil
	}

	rows, err := s.repo.UsageEvents(ctx, q.Dimension.column(), q.ID, q.Range, limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query usage events")
	}
	built := pagination.BuildPage(usageDTOs(rows), q.Limit, func(d ledger.UsageEventDTO) pagination.Cursor {
		return pagination.Cursor{At: d.Timestamp, ID: d.ID}
	})
	page.Usage, page.NextCursor = built.Items, built.NextCursor
	return page, nil
}

func (s *service) Summary(ctx context.Context, q Query) (*Summary, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	summary := &Summary{Dimension: q.Dimension, ID: q.ID}

	if q.Dimension.Purchases() {
		rows, err := s.repo.PurchaseEvents(ctx, q.ID, q.Range, 0, nil)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query purchase events")
		}
		summarizePurchases(summary, rows)
		return summary, nil
	}

	column := q.Dimension.column()
	var groups []grouping
	if q.Dimension == DimensionItem {
		groups = []grouping{
			{target: &summary.ByEmployee, idColumn: "employee_id", nameColumn: "employee_name"},
			{target: &summary.ByMachine, idColumn: "machine_id", nameColumn: "machine_name"},
		}
	} else {
		groups = []grouping{{target: &summary.ByItem, idColumn: "item_id", nameColumn: "item_name"}}
	}

	for i, group := range groups {
		rows, err := s.repo.UsageTotals(ctx, column, q.ID, q.Range, group.idColumn, group.nameColumn)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate usage events")
		}
		buckets := make([]Bucket, 0, len(rows))
		for _, row := range rows {
			buckets = append(buckets, Bucket{ID: row.ID, Name: row.Name, Quantity: row.Quantity})
			if i == 0 {
				summary.TotalQuantity += row.Quantity
				summary.EventCount += row.Events
			}
		}
		*group.target = buckets
	}
	return summary, nil
}

func (s *service) Dashboard(ctx context.Context) (*Dashboard, error) {
	items, err := s.items.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	out := &Dashboard{
		TotalItems:    len(items),
		LowStockItems: []inventory.ItemDTO{},
	}
	for i := range items {
		dto := inventory.FromModel(&items[i])
		out.TotalUnits += dto.TotalStock
		switch dto.Status {
		case enums.StockLowStock:
			out.LowStockCount++
			out.LowStockItems = append(out.LowStockItems, *dto)
		case enums.StockOutOfStock:
			out.OutOfStockCount++
			out.LowStockItems = append(out.LowStockItems, *dto)
		}
	}
	return out, nil
}

// Export writes every matching event as CSV in chronological order.
func (s *service) Export(ctx context.Context, q Query, w io.Writer) error {
	if err := q.validate(); err != nil {
		return err
	}
	var records []Record
	if q.Dimension.Purchases() {
		rows, err := s.repo.PurchaseEvents(ctx, q.ID, q.Range, 0, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query purchase events")
		}
		for _, dto := range purchaseDTOs(rows) {
			records = append(records, PurchaseRecord(dto))
		}
	} else {
		rows, err := s.repo.UsageEvents(ctx, q.Dimension.column(), q.ID, q.Range, 0, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query usage events")
		}
		for _, dto := range usageDTOs(rows) {
			records = append(records, UsageRecord(dto))
		}
	}
	return WriteCSV(w, records)
}

type grouping struct {
	target     *[]Bucket
	idColumn   string
	nameColumn string
}

func summarizePurchases(summary *Summary, rows []models.PurchaseEvent) {
	total := decimal.Zero
	index := map[string]int{}
	perItemCost := []decimal.Decimal{}
	for _, row := range rows {
		summary.EventCount++
		summary.TotalQuantity += row.Quantity
		total = total.Add(row.TotalCost)

		key := row.ItemID.String()
		pos, ok := index[key]
		if !ok {
			pos = len(summary.ByItem)
			index[key] = pos
			summary.ByItem = append(summary.ByItem, Bucket{ID: row.ItemID, Name: row.ItemName})
			perItemCost = append(perItemCost, decimal.Zero)
		}
		summary.ByItem[pos].Quantity += row.Quantity
		summary.ByItem[pos].Name = row.ItemName
		perItemCost[pos] = perItemCost[pos].Add(row.TotalCost)
	}
	for i := range summary.ByItem {
		summary.ByItem[i].Cost = perItemCost[i].StringFixed(2)
	}
	summary.TotalCost = total.StringFixed(2)
}

func usageDTOs(rows []models.UsageEvent) []ledger.UsageEventDTO {
	out := make([]ledger.UsageEventDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *ledger.UsageFromModel(&rows[i]))
	}
	return out
}

func purchaseDTOs(rows []models.PurchaseEvent) []ledger.PurchaseEventDTO {
	out := make([]ledger.PurchaseEventDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *ledger.PurchaseFromModel(&rows[i]))
	}
	return out
}
