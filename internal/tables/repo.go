package tables

import (
	"context"

	"gorm.io/gorm"
)

// Repository reads whitelisted tables without a model type.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}

// Rows returns up to limit rows ordered by the key column.
func (r *Repository) Rows(ctx context.Context, table, key string, limit, offset int) ([]map[string]any, error) {
	var rows []map[string]any
	err := r.db.WithContext(ctx).
		Table(table).
		Order(key + " ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, err
}
