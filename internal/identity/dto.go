package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated email/password principal.
type Identity struct {
	UID   uuid.UUID `json:"uid"`
	Email string    `json:"email"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is returned by sign-up and sign-in.
type Session struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Identity    Identity  `json:"identity"`
}

// Listener observes session changes. It receives the identity on sign-up and
// sign-in and nil on sign-out.
type Listener func(ctx context.Context, identity *Identity) error
