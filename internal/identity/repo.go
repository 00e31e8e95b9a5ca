package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
)

// Repository stores email/password credentials.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var cred models.Credential
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *Repository) Create(ctx context.Context, cred *models.Credential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

func (r *Repository) UpdateLastLogin(ctx context.Context, uid uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Credential{}).
		Where("uid = ?", uid).
		Update("last_login_at", at).Error
}
