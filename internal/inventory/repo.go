package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// Repository persists items and applies stock adjustments.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.db.WithContext(ctx).Order("name_key ASC").Find(&items).Error
	return items, err
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), id)
}

func (r *Repository) FindByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Item, error) {
	var item models.Item
	if err := tx.Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// LockByIDTx reads the item and, on Postgres, holds a row lock until the
// transaction ends. SQLite serializes writers on its single connection.
func (r *Repository) LockByIDTx(tx *gorm.DB, id uuid.UUID) (*models.Item, error) {
	query := tx
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item models.Item
	if err := query.Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) NameTakenTx(tx *gorm.DB, key string, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := tx.Model(&models.Item{}).Where("name_key = ?", key)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) CreateTx(tx *gorm.DB, item *models.Item) error {
	return tx.Create(item).Error
}

// UpdateDetailsTx writes the non-quantity columns present in fields.
func (r *Repository) UpdateDetailsTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) (*models.Item, error) {
	for column := range fields {
		switch column {
		case "name", "name_key", "category", "low_stock_threshold":
		default:
			return nil, fmt.Errorf("column %s is not editable", column)
		}
	}
	fields["updated_at"] = tx.NowFunc()
	res := tx.Model(&models.Item{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByIDTx(tx, id)
}

func (r *Repository) DeleteTx(tx *gorm.DB, id uuid.UUID) error {
	res := tx.Where("id = ?", id).Delete(&models.Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdjustStockTx adds delta to the location's quantity. Decrements only apply
// when enough stock remains, so the returned bool is false when the guard
// rejected the update.
func (r *Repository) AdjustStockTx(tx *gorm.DB, id uuid.UUID, location enums.Location, delta int) (bool, error) {
	column := location.Column()
	if column == "" {
		return false, fmt.Errorf("unknown location %q", location)
	}
	query := tx.Model(&models.Item{}).Where("id = ?", id)
	if delta < 0 {
		query = query.Where(column+" >= ?", -delta)
	}
	res := query.Updates(map[string]any{
		column:       gorm.Expr(column+" + ?", delta),
		"updated_at": tx.NowFunc(),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
