package middleware

import (
	"context"

	"github.com/ppetrack/ppetrack-backend/internal/access"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the resolved caller on the context.
func WithActor(ctx context.Context, actor access.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the caller resolved by Auth.
func ActorFromContext(ctx context.Context) (access.Actor, bool) {
	if ctx == nil {
		return access.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(access.Actor)
	return actor, ok
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return string(actor.Role)
	}
	return ""
}
