package reports

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

// Repository runs read-only queries over the event logs.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type groupRow struct {
	ID       uuid.UUID
	Name     string
	Quantity int
	Events   int
}

func (r *Repository) usageScope(ctx context.Context, column string, id uuid.UUID, rng Range) *gorm.DB {
	return scoped(r.db.WithContext(ctx).Model(&models.UsageEvent{}), column, "logged_at", id, rng)
}

func (r *Repository) purchaseScope(ctx context.Context, column string, id uuid.UUID, rng Range) *gorm.DB {
	return scoped(r.db.WithContext(ctx).Model(&models.PurchaseEvent{}), column, "purchase_timestamp", id, rng)
}

func scoped(query *gorm.DB, column, tsColumn string, id uuid.UUID, rng Range) *gorm.DB {
	query = query.Where(column+" = ?", id)
	if rng.From != nil {
		query = query.Where(tsColumn+" >= ?", *rng.From)
	}
	if rng.To != nil {
		query = query.Where(tsColumn+" < ?", *rng.To)
	}
	return query
}

// UsageEvents returns matching usage events in chronological order. A zero
// limit returns every row.
func (r *Repository) UsageEvents(ctx context.Context, column string, id uuid.UUID, rng Range, limit int, cursor *pagination.Cursor) ([]models.UsageEvent, error) {
	query := r.usageScope(ctx, column, id, rng)
	if cursor != nil {
		query = query.Where("(logged_at > ?) OR (logged_at = ? AND id > ?)", cursor.At, cursor.At, cursor.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.UsageEvent
	err := query.Order("logged_at ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) PurchaseEvents(ctx context.Context, id uuid.UUID, rng Range, limit int, cursor *pagination.Cursor) ([]models.PurchaseEvent, error) {
	query := r.purchaseScope(ctx, "supplier_id", id, rng)
	if cursor != nil {
		query = query.Where("(purchase_timestamp > ?) OR (purchase_timestamp = ? AND id > ?)", cursor.At, cursor.At, cursor.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.PurchaseEvent
	err := query.Order("purchase_timestamp ASC").Order("id ASC").Find(&rows).Error
	return rows, err
}

// UsageTotals groups matching usage events by the given id/name column pair.
func (r *Repository) UsageTotals(ctx context.Context, column string, id uuid.UUID, rng Range, groupID, groupName string) ([]groupRow, error) {
	var rows []groupRow
	err := r.usageScope(ctx, column, id, rng).
		Select(groupID + " AS id, MAX(" + groupName + ") AS name, SUM(quantity) AS quantity, COUNT(*) AS events").
		Group(groupID).
		Order("quantity DESC").
		Order("name ASC").
		Scan(&rows).Error
	return rows, err
}
