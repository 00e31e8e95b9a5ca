package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// ItemDTO exposes an item with its derived totals.
type ItemDTO struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name"`
	Category          string            `json:"category"`
	Location1Qty      int               `json:"location1Qty"`
	Location2Qty      int               `json:"location2Qty"`
	LowStockThreshold int               `json:"lowStockThreshold"`
	TotalStock        int               `json:"totalStock"`
	Status            enums.StockStatus `json:"status"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

func FromModel(item *models.Item) *ItemDTO {
	if item == nil {
		return nil
	}
	total := item.TotalStock()
	return &ItemDTO{
		ID:                item.ID,
		Name:              item.Name,
		Category:          item.Category,
		Location1Qty:      item.Location1Qty,
		Location2Qty:      item.Location2Qty,
		LowStockThreshold: item.LowStockThreshold,
		TotalStock:        total,
		Status:            enums.DeriveStockStatus(total, item.LowStockThreshold),
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
}

// CreateItemInput sets the item's initial stock. This is the only quantity
// write that does not go through the ledger.
type CreateItemInput struct {
	Name              string
	Category          string
	Location1Qty      int
	Location2Qty      int
	LowStockThreshold int
}

// UpdateItemInput carries the editable fields. Quantities are not editable.
type UpdateItemInput struct {
	Name              *string
	Category          *string
	LowStockThreshold *int
}
