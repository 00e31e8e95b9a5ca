package catalog

import (
	"strings"

	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

const maxNameLength = 120

// CleanName trims name and returns it with its case-insensitive uniqueness key.
func CleanName(name string) (display string, key string, err error) {
	display = strings.TrimSpace(name)
	if display == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len([]rune(display)) > maxNameLength {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "name is too long").
			WithDetails(map[string]any{"maxLength": maxNameLength})
	}
	return display, NameKey(display), nil
}

// NameKey is the lower-cased, trimmed form used for uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DuplicateName builds the DUPLICATE_NAME error for kind.
func DuplicateName(kind, name string) error {
	return pkgerrors.New(pkgerrors.CodeDuplicateName, "name already exists").
		WithDetails(map[string]any{"kind": kind, "name": name})
}
