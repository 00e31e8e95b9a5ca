package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// fakeStore keeps idempotency records in a sync.Map; TTLs are ignored.
type fakeStore struct {
	entries sync.Map
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	v, ok := f.entries.Load(key)
	if !ok {
		return "", redis.Nil
	}
	return v.(string), nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	_, loaded := f.entries.LoadOrStore(key, fmt.Sprint(value))
	return !loaded, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.entries.Store(key, fmt.Sprint(value))
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		f.entries.Delete(k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "test-idem:" + scope + ":" + id
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		pattern  string
		ok       bool
		required bool
	}{
		{"usage", http.MethodPost, "/api/v1/usage", true, true},
		{"restock", http.MethodPost, "/api/v1/restock", true, true},
		{"catalog create", http.MethodPost, "/api/v1/catalog/{kind}", true, false},
		{"item create trailing slash", http.MethodPost, "/api/v1/items/", true, false},
		{"usage list", http.MethodGet, "/api/v1/usage", false, false},
		{"login", http.MethodPost, "/api/v1/auth/login", false, false},
	}

	for _, tt := range tests {
		rule, ok := matchRule(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && rule.required != tt.required {
			t.Fatalf("%s: expected required=%v got %v", tt.name, tt.required, rule.required)
		}
	}
}

func TestIdempotencyRequiresHeaderForStockTransactions(t *testing.T) {
	mw := Idempotency(newFakeStore(), 0, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":1}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}

	optional := requestWithPattern(http.MethodPost, "/api/v1/catalog/employees", "/api/v1/catalog/{kind}", strings.NewReader(`{"name":"Alice"}`))
	resp = httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, optional)
	if resp.Code != http.StatusCreated || !handlerCalled {
		t.Fatalf("expected catalog create without key to pass, got %d", resp.Code)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), time.Hour, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"quantity":4}}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":4}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}
	if resp.Header().Get(replayHeader) != "" {
		t.Fatalf("first response must not be marked as replay")
	}

	replay := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":4}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get(replayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":{"quantity":4}}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), time.Hour, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/restock", "/api/v1/restock", strings.NewReader(`{"quantity":20}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/restock", "/api/v1/restock", strings.NewReader(`{"quantity":21}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyReleasesKeyOnRetryableFailure(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":1}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected the retry to execute again, handler ran %d times", calls)
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, time.Hour, nil)

	inFlight := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":1}`))
	inFlight.Header.Set("Idempotency-Key", "dup")

	var second *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if second == nil {
			second = httptest.NewRecorder()
			dup := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":1}`))
			dup.Header.Set("Idempotency-Key", "dup")
			mw(http.NotFoundHandler()).ServeHTTP(second, dup)
		}
		w.WriteHeader(http.StatusCreated)
	})
	mw(handler).ServeHTTP(httptest.NewRecorder(), inFlight)

	if second == nil || second.Code != http.StatusConflict {
		t.Fatalf("expected in-progress duplicate to get 409, got %+v", second)
	}
}

func TestIdempotencyReleasesKeyWhenHandlerPanics(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	})
	chain := Recoverer(nil)(Idempotency(store, time.Hour, nil)(handler))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/usage", "/api/v1/usage", strings.NewReader(`{"quantity":1}`))
		req.Header.Set("Idempotency-Key", "panicky")
		resp := httptest.NewRecorder()
		chain.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}
	if calls != 2 {
		t.Fatalf("expected the retry to run the handler again, ran %d times", calls)
	}
	if codes[0] != http.StatusInternalServerError || codes[1] != http.StatusCreated {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
