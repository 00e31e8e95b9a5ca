package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// UserAccount holds the role assigned to an identity.
type UserAccount struct {
	UID       uuid.UUID  `gorm:"column:uid;type:uuid;primaryKey"`
	Email     string     `gorm:"column:email;not null;uniqueIndex:ux_user_accounts_email"`
	Role      enums.Role `gorm:"column:role;type:text;not null;check:chk_user_accounts_role,role IN ('user','manager','admin')"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
