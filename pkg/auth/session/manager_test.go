package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/ppetrack/ppetrack-backend/pkg/config"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) AccessSessionKey(accessID string) string { return "session:" + accessID }

func newTestManager(t *testing.T, store *mockStore) *Manager {
	t.Helper()
	mgr, err := newManager(store, config.JWTConfig{ExpirationMinutes: 15})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr
}

func TestOpenHasRevoke(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	mgr := newTestManager(t, store)
	accessID := NewAccessID()
	uid := uuid.New()

	if err := mgr.Open(ctx, accessID, uid); err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.ttls["session:"+accessID] != 15*time.Minute {
		t.Fatalf("expected ttl to match token lifetime, got %v", store.ttls["session:"+accessID])
	}
	ok, err := mgr.HasSession(ctx, accessID)
	if err != nil || !ok {
		t.Fatalf("expected live session, ok=%v err=%v", ok, err)
	}

	if err := mgr.Revoke(ctx, accessID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = mgr.HasSession(ctx, accessID)
	if err != nil || ok {
		t.Fatalf("expected revoked session, ok=%v err=%v", ok, err)
	}
}

func TestHasSessionPropagatesStoreErrors(t *testing.T) {
	store := newMockStore()
	store.err = errors.New("redis down")
	mgr := newTestManager(t, store)

	if _, err := mgr.HasSession(context.Background(), "abc"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestManagerValidatesInput(t *testing.T) {
	if _, err := newManager(newMockStore(), config.JWTConfig{}); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
	mgr := newTestManager(t, newMockStore())
	if err := mgr.Open(context.Background(), " ", uuid.New()); err == nil {
		t.Fatal("expected blank access id to fail")
	}
	if err := mgr.Open(context.Background(), "abc", uuid.Nil); err == nil {
		t.Fatal("expected nil user id to fail")
	}
	if _, err := mgr.HasSession(context.Background(), ""); err == nil {
		t.Fatal("expected blank access id to fail")
	}
}
