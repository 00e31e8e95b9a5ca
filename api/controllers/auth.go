package controllers

import (
	"net/http"

	"github.com/ppetrack/ppetrack-backend/api/middleware"
	"github.com/ppetrack/ppetrack-backend/api/responses"
	"github.com/ppetrack/ppetrack-backend/api/validators"
	"github.com/ppetrack/ppetrack-backend/internal/identity"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

type sessionResponse struct {
	UID   string     `json:"uid"`
	Email string     `json:"email"`
	Role  enums.Role `json:"role"`
}

// AuthRegister creates credentials and opens the first session.
func AuthRegister(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body identity.Credentials
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SignUp(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, session)
	}
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body identity.Credentials
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.SignIn(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, session)
	}
}

// AuthLogout revokes the session behind the presented access token.
func AuthLogout(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := middleware.BearerToken(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SignOut(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}

// SessionCurrent returns the caller resolved by the auth middleware.
func SessionCurrent(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sessionResponse{UID: actor.UID.String(), Email: actor.Email, Role: actor.Role})
	}
}
