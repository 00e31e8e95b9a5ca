package roles

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// Identity is the authenticated subject the resolver assigns a role to.
type Identity struct {
	UID   uuid.UUID
	Email string
}

// AccountDTO is the transport shape of a user account.
type AccountDTO struct {
	UID       uuid.UUID  `json:"uid"`
	Email     string     `json:"email"`
	Role      enums.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func FromModel(a *models.UserAccount) *AccountDTO {
	if a == nil {
		return nil
	}
	return &AccountDTO{
		UID:       a.UID,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
