package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// Repository reads and writes the employees, machines and suppliers tables.
// All three share the CatalogEntry row shape.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, kind enums.CatalogKind) ([]models.CatalogEntry, error) {
	var rows []models.CatalogEntry
	err := r.db.WithContext(ctx).Table(kind.String()).Order("name_key ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindByID(ctx context.Context, kind enums.CatalogKind, id uuid.UUID) (*models.CatalogEntry, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), kind, id)
}

// FindByIDTx loads an entry inside the caller's transaction.
func (r *Repository) FindByIDTx(tx *gorm.DB, kind enums.CatalogKind, id uuid.UUID) (*models.CatalogEntry, error) {
	var row models.CatalogEntry
	if err := tx.Table(kind.String()).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// NameTakenTx reports whether another entry of kind already uses key.
func (r *Repository) NameTakenTx(tx *gorm.DB, kind enums.CatalogKind, key string, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := tx.Table(kind.String()).Where("name_key = ?", key)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) CreateTx(tx *gorm.DB, kind enums.CatalogKind, entry *models.CatalogEntry) error {
	return tx.Table(kind.String()).Create(entry).Error
}

func (r *Repository) RenameTx(tx *gorm.DB, kind enums.CatalogKind, id uuid.UUID, name, key string) (*models.CatalogEntry, error) {
	res := tx.Table(kind.String()).Where("id = ?", id).Updates(map[string]any{
		"name":       name,
		"name_key":   key,
		"updated_at": tx.NowFunc(),
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByIDTx(tx, kind, id)
}

func (r *Repository) DeleteTx(tx *gorm.DB, kind enums.CatalogKind, id uuid.UUID) error {
	res := tx.Table(kind.String()).Where("id = ?", id).Delete(&models.CatalogEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
