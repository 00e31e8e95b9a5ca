package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ppetrack/ppetrack-backend/api/responses"
	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/identity"
	"github.com/ppetrack/ppetrack-backend/internal/roles"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

// accessTokenQueryParam carries the token for EventSource clients, which
// cannot set headers.
const accessTokenQueryParam = "access_token"

type identityResolver interface {
	Current(ctx context.Context, token string) (*identity.Identity, error)
}

type roleResolver interface {
	ResolveRole(ctx context.Context, identity roles.Identity) (enums.Role, error)
}

// BearerToken extracts the access token from the Authorization header, or
// from the access_token query parameter when the header is absent.
func BearerToken(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam))
	}
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	token := raw
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return token, nil
}

// Auth resolves the bearer token to an identity, resolves the identity's
// role and seeds the request context with the actor.
func Auth(identities identityResolver, roleSvc roleResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			id, err := identities.Current(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			role, err := roleSvc.ResolveRole(r.Context(), roles.Identity{UID: id.UID, Email: id.Email})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			actor := access.Actor{UID: id.UID, Email: id.Email, Role: role}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.UID.String(), actor.Email, string(actor.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
