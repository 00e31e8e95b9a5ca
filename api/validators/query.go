package validators

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// ParseQueryInt reads an optional integer query parameter bounded by
// [lo, hi]. A missing or blank value yields def.
func ParseQueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	field := map[string]any{"field": key}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be an integer").WithDetails(field)
	case n < lo || n > hi:
		field["min"], field["max"] = lo, hi
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be between %d and %d", key, lo, hi)).WithDetails(field)
	}
	return n, nil
}

// ParseUUIDParam reads a chi URL parameter as a UUID.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return parseUUID(chi.URLParam(r, name), name)
}

// ParseQueryUUID reads a required query parameter as a UUID.
func ParseQueryUUID(r *http.Request, key string) (uuid.UUID, error) {
	return parseUUID(r.URL.Query().Get(key), key)
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, field+" is required").WithDetails(map[string]any{"field": field})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" must be a uuid").WithDetails(map[string]any{"field": field})
	}
	return id, nil
}
