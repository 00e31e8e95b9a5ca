package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential is the email/password identity record.
type Credential struct {
	UID          uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey"`
	Email        string     `gorm:"column:email;not null;uniqueIndex:ux_credentials_email"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Credential) BeforeCreate(*gorm.DB) error {
	if c.UID == uuid.Nil {
		c.UID = uuid.New()
	}
	return nil
}
