package roles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// Repository persists user accounts and their roles.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByUID loads an account, returning gorm.ErrRecordNotFound when absent.
func (r *Repository) FindByUID(ctx context.Context, uid uuid.UUID) (*models.UserAccount, error) {
	return r.findByUID(r.db.WithContext(ctx), uid)
}

func (r *Repository) findByUID(tx *gorm.DB, uid uuid.UUID) (*models.UserAccount, error) {
	var account models.UserAccount
	if err := tx.First(&account, "uid = ?", uid).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) CreateTx(tx *gorm.DB, account *models.UserAccount) error {
	return tx.Create(account).Error
}

func (r *Repository) UpdateRoleTx(tx *gorm.DB, uid uuid.UUID, role enums.Role) (*models.UserAccount, error) {
	res := tx.Model(&models.UserAccount{}).Where("uid = ?", uid).Update("role", role)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.findByUID(tx, uid)
}

// List returns every account ordered by email.
func (r *Repository) List(ctx context.Context) ([]models.UserAccount, error) {
	var accounts []models.UserAccount
	err := r.db.WithContext(ctx).Order("email ASC").Find(&accounts).Error
	return accounts, err
}

// FindByEmail loads an account by its normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	var account models.UserAccount
	if err := r.db.WithContext(ctx).First(&account, "email = ?", normalizeEmail(email)).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
