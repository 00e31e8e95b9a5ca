package controllers

import (
	"net/http"

	"github.com/ppetrack/ppetrack-backend/api/middleware"
	"github.com/ppetrack/ppetrack-backend/internal/access"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

func actorFrom(r *http.Request) (access.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return access.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}
