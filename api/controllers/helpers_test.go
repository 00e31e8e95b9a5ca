package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ppetrack/ppetrack-backend/api/middleware"
	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/types"
)

var (
	testLogger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	manager    = access.Actor{UID: uuid.New(), Email: "m@example.com", Role: enums.RoleManager}
	admin      = access.Actor{UID: uuid.New(), Email: "a@example.com", Role: enums.RoleAdmin}
)

func newRequest(method, target, body string, actor *access.Actor, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, out any) *types.PageMeta {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
		Meta *types.PageMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env.Meta
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env.Error
}
