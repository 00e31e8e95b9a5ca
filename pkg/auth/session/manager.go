package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/redis"
)

var errNoAccessID = errors.New("access id is required")

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Manager records one Redis key per issued access token (its jti). Sign-out
// deletes the key, which invalidates the token before it expires.
type Manager struct {
	store store
	ttl   time.Duration
}

func NewManager(client *redis.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return newManager(client, cfg)
}

func newManager(s store, cfg config.JWTConfig) (*Manager, error) {
	if cfg.AccessTTL() <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &Manager{store: s, ttl: cfg.AccessTTL()}, nil
}

func (m *Manager) key(accessID string) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errNoAccessID
	}
	return m.store.AccessSessionKey(accessID), nil
}

// Open starts the session for accessID; it lives as long as the token.
func (m *Manager) Open(ctx context.Context, accessID string, userID uuid.UUID) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	if userID == uuid.Nil {
		return errors.New("user id is required")
	}
	if err := m.store.Set(ctx, key, userID.String(), m.ttl); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// HasSession reports whether accessID was opened and not yet revoked or
// expired.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	key, err := m.key(accessID)
	if err != nil {
		return false, err
	}
	_, err = m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return true, nil
}

// NewAccessID returns a fresh token id.
func NewAccessID() string {
	return uuid.NewString()
}
