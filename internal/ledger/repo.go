package ledger

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

// Repository persists usage and purchase events.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertUsageTx(tx *gorm.DB, event *models.UsageEvent) error {
	return tx.Create(event).Error
}

func (r *Repository) InsertPurchaseTx(tx *gorm.DB, event *models.PurchaseEvent) error {
	return tx.Create(event).Error
}

func (r *Repository) FindUsageByIDTx(tx *gorm.DB, id uuid.UUID) (*models.UsageEvent, error) {
	var event models.UsageEvent
	if err := tx.Where("id = ?", id).Take(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Repository) UpdateUsageTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) (*models.UsageEvent, error) {
	fields["updated_at"] = tx.NowFunc()
	res := tx.Model(&models.UsageEvent{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindUsageByIDTx(tx, id)
}

func (r *Repository) DeleteUsageTx(tx *gorm.DB, id uuid.UUID) error {
	res := tx.Where("id = ?", id).Delete(&models.UsageEvent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type columnKind int

const (
	textColumn columnKind = iota
	uuidColumn
	intColumn
)

type filterColumn struct {
	name string
	kind columnKind
}

// Filterable DTO keys per log, mapped to their columns.
var (
	usageColumns = map[string]filterColumn{
		"id":            {"id", uuidColumn},
		"itemId":        {"item_id", uuidColumn},
		"itemName":      {"item_name", textColumn},
		"employeeId":    {"employee_id", uuidColumn},
		"employeeName":  {"employee_name", textColumn},
		"machineId":     {"machine_id", uuidColumn},
		"machineName":   {"machine_name", textColumn},
		"location":      {"location", textColumn},
		"quantity":      {"quantity", intColumn},
		"notes":         {"notes", textColumn},
		"loggedBy":      {"logged_by", uuidColumn},
		"loggedByEmail": {"logged_by_email", textColumn},
	}
	purchaseColumns = map[string]filterColumn{
		"id":            {"id", uuidColumn},
		"itemId":        {"item_id", uuidColumn},
		"itemName":      {"item_name", textColumn},
		"supplierId":    {"supplier_id", uuidColumn},
		"supplierName":  {"supplier_name", textColumn},
		"location":      {"location", textColumn},
		"quantity":      {"quantity", intColumn},
		"loggedBy":      {"logged_by", uuidColumn},
		"loggedByEmail": {"logged_by_email", textColumn},
	}
)

// applyLogFilter narrows query to filter. Fields without a column are left
// for the caller to match. A value that cannot be stored in its column
// matches nothing.
func applyLogFilter(query *gorm.DB, filter LogFilter, columns map[string]filterColumn, timeColumn string) *gorm.DB {
	if filter.From != nil {
		query = query.Where(timeColumn+" >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where(timeColumn+" < ?", filter.To.UTC())
	}
	col, ok := columns[filter.Field]
	if filter.Field == "" || !ok {
		return query
	}
	switch col.kind {
	case uuidColumn:
		id, err := uuid.Parse(filter.Value)
		if err != nil {
			return query.Where("1 = 0")
		}
		return query.Where(col.name+" = ?", id)
	case intColumn:
		n, err := strconv.Atoi(filter.Value)
		if err != nil {
			return query.Where("1 = 0")
		}
		return query.Where(col.name+" = ?", n)
	default:
		return query.Where("LOWER("+col.name+") = ?", strings.ToLower(filter.Value))
	}
}

// ListUsage returns usage events newest first, fetching one extra row so the
// caller can tell whether another page exists.
func (r *Repository) ListUsage(ctx context.Context, limit int, cursor *pagination.Cursor, filter LogFilter) ([]models.UsageEvent, error) {
	query := applyLogFilter(r.db.WithContext(ctx).Model(&models.UsageEvent{}), filter, usageColumns, "logged_at")
	if cursor != nil {
		query = query.Where("((logged_at < ?) OR (logged_at = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.UsageEvent
	err := query.Order("logged_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) ListPurchases(ctx context.Context, limit int, cursor *pagination.Cursor, filter LogFilter) ([]models.PurchaseEvent, error) {
	query := applyLogFilter(r.db.WithContext(ctx).Model(&models.PurchaseEvent{}), filter, purchaseColumns, "purchase_timestamp")
	if cursor != nil {
		query = query.Where("((purchase_timestamp < ?) OR (purchase_timestamp = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}
	var rows []models.PurchaseEvent
	err := query.Order("purchase_timestamp DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
