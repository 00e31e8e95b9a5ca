package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/identity"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

type stubIdentities struct {
	tokens map[string]identity.Identity
}

func (s stubIdentities) Current(_ context.Context, token string) (*identity.Identity, error) {
	id, ok := s.tokens[token]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token")
	}
	return &id, nil
}

type stubRoles struct {
	roles map[uuid.UUID]enums.Role
}

func (s stubRoles) ResolveRole(_ context.Context, id roles.Identity) (enums.Role, error) {
	if role, ok := s.roles[id.UID]; ok {
		return role, nil
	}
	return enums.RoleUser, nil
}

func newAuthFixture() (func(http.Handler) http.Handler, uuid.UUID) {
	uid := uuid.New()
	ids := stubIdentities{tokens: map[string]identity.Identity{
		"good": {UID: uid, Email: "boss@example.com"},
	}}
	rs := stubRoles{roles: map[uuid.UUID]enums.Role{uid: enums.RoleManager}}
	return Auth(ids, rs, nil), uid
}

func TestAuthRejectsMissingToken(t *testing.T) {
	auth, _ := newAuthFixture()
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	auth, _ := newAuthFixture()
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsActor(t *testing.T) {
	auth, uid := newAuthFixture()

	var captured access.Actor
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatal("expected actor in context")
		}
		captured = actor
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UID != uid || captured.Role != enums.RoleManager || captured.Email != "boss@example.com" {
		t.Fatalf("unexpected actor %+v", captured)
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	auth, _ := newAuthFixture()
	handler := auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/live/items?access_token=good", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gate := RequirePermission(access.OpRestock, nil)(ok)

	cases := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"no actor", context.Background(), http.StatusUnauthorized},
		{"user", WithActor(context.Background(), access.Actor{UID: uuid.New(), Role: enums.RoleUser}), http.StatusForbidden},
		{"manager", WithActor(context.Background(), access.Actor{UID: uuid.New(), Role: enums.RoleManager}), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/restock", nil).WithContext(tc.ctx)
		resp := httptest.NewRecorder()
		gate.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}
