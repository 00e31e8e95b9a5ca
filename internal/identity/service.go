package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/ppetrack/ppetrack-backend/pkg/auth"
	"github.com/ppetrack/ppetrack-backend/pkg/auth/session"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service signs identities in and out and resolves bearer tokens.
type Service interface {
	SignUp(ctx context.Context, creds Credentials) (*Session, error)
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, token string) error
	Current(ctx context.Context, token string) (*Identity, error)
	OnChange(listener Listener)
}

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Credential, error)
	Create(ctx context.Context, cred *models.Credential) error
	UpdateLastLogin(ctx context.Context, uid uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Open(ctx context.Context, accessID string, userID uuid.UUID) error
	Revoke(ctx context.Context, accessID string) error
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type ServiceParams struct {
	Credentials    credentialStore
	Sessions       sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
	Clock          func() time.Time
}

type service struct {
	creds       credentialStore
	sessions    sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	logg        *logger.Logger
	clock       func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

func NewService(params ServiceParams) (Service, error) {
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		creds:       params.Credentials,
		sessions:    params.Sessions,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		logg:        params.Logger,
		clock:       clock,
	}, nil
}

func (s *service) OnChange(listener Listener) {
	if listener == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listener)
	s.mu.Unlock()
}

func (s *service) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if err := security.CheckPasswordPolicy(creds.Password, s.passwordCfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	hash, err := security.HashPassword(creds.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	now := s.clock().UTC()
	cred := &models.Credential{
		Email:        email,
		PasswordHash: hash,
		LastLoginAt:  &now,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		if db.IsUniqueViolation(err, "ux_credentials_email") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create credential")
	}
	return s.open(ctx, cred, now)
}

func (s *service) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	cred, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			security.BurnVerify(creds.Password, s.passwordCfg)
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credential")
	}
	ok, err := security.VerifyPassword(creds.Password, cred.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	now := s.clock().UTC()
	if err := s.creds.UpdateLastLogin(ctx, cred.UID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login")
	}
	return s.open(ctx, cred, now)
}

func (s *service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	_ = s.notify(ctx, nil)
	return nil
}

// Current resolves a bearer token to its identity while the session is open.
func (s *service) Current(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	active, err := s.sessions.HasSession(ctx, claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session")
	}
	if !active {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")
	}
	return &Identity{UID: claims.UserID, Email: claims.Email}, nil
}

func (s *service) open(ctx context.Context, cred *models.Credential, now time.Time) (*Session, error) {
	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: cred.UID,
		Email:  cred.Email,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Open(ctx, accessID, cred.UID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open session")
	}

	id := Identity{UID: cred.UID, Email: cred.Email}
	if err := s.notify(ctx, &id); err != nil {
		_ = s.sessions.Revoke(ctx, accessID)
		return nil, err
	}
	return &Session{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   now.Add(s.jwtCfg.AccessTTL()),
		Identity:    id,
	}, nil
}

// notify runs listeners in registration order and stops at the first error.
func (s *service) notify(ctx context.Context, id *Identity) error {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, listener := range listeners {
		if err := listener(ctx, id); err != nil {
			if s.logg != nil {
				s.logg.Error(ctx, "session listener failed", err)
			}
			return err
		}
	}
	return nil
}

func (s *service) parse(token string) (*pkgAuth.AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	claims, err := pkgAuth.ParseAccessToken(s.jwtCfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
