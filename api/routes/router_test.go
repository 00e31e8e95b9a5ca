package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/identity"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

var tokens = map[string]identity.Identity{
	"user-token":    {UID: uuid.New(), Email: "u@example.com"},
	"manager-token": {UID: uuid.New(), Email: "m@example.com"},
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubIdentity struct{ identity.Service }

func (stubIdentity) Current(_ context.Context, token string) (*identity.Identity, error) {
	id, ok := tokens[token]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token")
	}
	return &id, nil
}

type stubRoles struct{ roles.Service }

func (stubRoles) ResolveRole(_ context.Context, id roles.Identity) (enums.Role, error) {
	if id.Email == "m@example.com" {
		return enums.RoleManager, nil
	}
	return enums.RoleUser, nil
}

type stubInventory struct{ inventory.Service }

func (stubInventory) ListItems(context.Context) ([]inventory.ItemDTO, error) {
	return []inventory.ItemDTO{{ID: uuid.New(), Name: "Gloves"}}, nil
}

type stubLedger struct {
	ledger.Service
	mu    sync.Mutex
	calls int
}

func (s *stubLedger) RecordRestock(_ context.Context, actor access.Actor, input ledger.RecordRestockInput) (*ledger.PurchaseEventDTO, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &ledger.PurchaseEventDTO{ID: uuid.New(), ItemID: input.ItemID, Quantity: input.Quantity}, nil
}

func (s *stubLedger) RecordUsage(_ context.Context, _ access.Actor, input ledger.RecordUsageInput) (*ledger.UsageEventDTO, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return &ledger.UsageEventDTO{ID: uuid.New(), ItemID: input.ItemID, Quantity: input.Quantity}, nil
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	if !ok {
		return "", nil
	}
	return value, nil
}

func (c *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; ok {
		return false, nil
	}
	c.values[key] = toString(value)
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = toString(value)
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func (c *memoryCache) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (c *memoryCache) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	return true, 1, nil
}

func (c *memoryCache) Ping(context.Context) error { return nil }

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Env: "dev", CORSOrigins: []string{"http://localhost:3000"}},
		Idempotency: config.IdempotencyConfig{TTL: time.Hour},
	}
}

func newTestRouter(t *testing.T, cache Cache, ledgerSvc ledger.Service) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(testConfig(), logg, stubPinger{}, cache, Services{
		Identity:  stubIdentity{},
		Roles:     stubRoles{},
		Inventory: stubInventory{},
		Ledger:    ledgerSvc,
	})
}

func do(h http.Handler, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func restockBody() string {
	return `{"itemId":"` + uuid.NewString() + `","supplierId":"` + uuid.NewString() + `","location":"location1","quantity":5,"totalCost":"12.50"}`
}

func TestHealthRoutes(t *testing.T) {
	h := newTestRouter(t, nil, &stubLedger{})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/live", "", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/ready", "", "", nil).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t, nil, &stubLedger{})

	resp := do(h, http.MethodGet, "/api/v1/items", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = do(h, http.MethodGet, "/api/v1/items", "user-token", "", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestRestockRequiresManager(t *testing.T) {
	ledgerSvc := &stubLedger{}
	h := newTestRouter(t, nil, ledgerSvc)

	resp := do(h, http.MethodPost, "/api/v1/restock", "user-token", restockBody(), nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, 0, ledgerSvc.calls)

	resp = do(h, http.MethodPost, "/api/v1/restock", "manager-token", restockBody(), nil)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 1, ledgerSvc.calls)
}

func TestStockRoutesReplayIdempotentRequests(t *testing.T) {
	ledgerSvc := &stubLedger{}
	h := newTestRouter(t, &memoryCache{values: map[string]string{}}, ledgerSvc)
	body := restockBody()

	resp := do(h, http.MethodPost, "/api/v1/restock", "manager-token", body, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	headers := map[string]string{"Idempotency-Key": "restock-1"}
	first := do(h, http.MethodPost, "/api/v1/restock", "manager-token", body, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(h, http.MethodPost, "/api/v1/restock", "manager-token", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, ledgerSvc.calls)
}

func TestAdminRoutesRejectManagers(t *testing.T) {
	h := newTestRouter(t, nil, &stubLedger{})

	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/admin/users", "manager-token", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/admin/tables", "manager-token", "", nil).Code)
}
