package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// EntryDTO is the transport shape of an employee, machine or supplier.
type EntryDTO struct {
	ID        uuid.UUID         `json:"id"`
	Kind      enums.CatalogKind `json:"kind"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func FromModel(kind enums.CatalogKind, e *models.CatalogEntry) *EntryDTO {
	if e == nil {
		return nil
	}
	return &EntryDTO{
		ID:        e.ID,
		Kind:      kind,
		Name:      e.Name,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
