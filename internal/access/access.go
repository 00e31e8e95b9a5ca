// Package access holds the role policy that gates every mutating operation.
package access

import (
	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// Operation names a gated capability.
type Operation string

const (
	OpRecordUsage   Operation = "record_usage"
	OpRestock       Operation = "restock_item"
	OpDeleteItem    Operation = "delete_item"
	OpEditItem      Operation = "edit_item"
	OpManageCatalog Operation = "manage_catalog"
	OpEditUsageLog  Operation = "edit_usage_log"
	OpManageRoles   Operation = "manage_roles"
	OpRawTables     Operation = "raw_tables"
	OpRead          Operation = "read"
)

var (
	everyone     = []enums.Role{enums.RoleUser, enums.RoleManager, enums.RoleAdmin}
	managersPlus = []enums.Role{enums.RoleManager, enums.RoleAdmin}
	adminsOnly   = []enums.Role{enums.RoleAdmin}
)

var policy = map[Operation][]enums.Role{
	OpRecordUsage:   everyone,
	OpRestock:       managersPlus,
	OpDeleteItem:    managersPlus,
	OpEditItem:      adminsOnly,
	OpManageCatalog: managersPlus,
	OpEditUsageLog:  managersPlus,
	OpManageRoles:   adminsOnly,
	OpRawTables:     adminsOnly,
	OpRead:          everyone,
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UID   uuid.UUID
	Email string
	Role  enums.Role
}

// Allowed reports whether role may perform op. Unknown operations and roles
// are denied.
func Allowed(role enums.Role, op Operation) bool {
	for _, candidate := range policy[op] {
		if candidate == role {
			return true
		}
	}
	return false
}

// Authorize returns PERMISSION_DENIED unless the actor's role may perform op.
func Authorize(actor Actor, op Operation) error {
	if actor.UID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if !Allowed(actor.Role, op) {
		return pkgerrors.New(pkgerrors.CodePermissionDenied, "permission denied").
			WithDetails(map[string]any{"operation": op, "role": actor.Role})
	}
	return nil
}

// Operations lists every gated operation.
func Operations() []Operation {
	return []Operation{
		OpRecordUsage,
		OpRestock,
		OpDeleteItem,
		OpEditItem,
		OpManageCatalog,
		OpEditUsageLog,
		OpManageRoles,
		OpRawTables,
		OpRead,
	}
}
