package reports

import (
	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/internal/ledger"
)

// EventsPage holds one page of report rows. Exactly one of Usage or Purchases
// is populated, depending on the dimension.
type EventsPage struct {
	Dimension  Dimension                 `json:"dimension"`
	Usage      []ledger.UsageEventDTO    `json:"usage,omitempty"`
	Purchases  []ledger.PurchaseEventDTO `json:"purchases,omitempty"`
	NextCursor string                    `json:"-"`
}

// Bucket is one grouped total inside a summary.
type Bucket struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
	Cost     string    `json:"cost,omitempty"`
}

// Summary aggregates the events of one entity.
type Summary struct {
	Dimension     Dimension `json:"dimension"`
	ID            uuid.UUID `json:"id"`
	EventCount    int       `json:"eventCount"`
	TotalQuantity int       `json:"totalQuantity"`
	TotalCost     string    `json:"totalCost,omitempty"`
	ByEmployee    []Bucket  `json:"byEmployee,omitempty"`
	ByMachine     []Bucket  `json:"byMachine,omitempty"`
	ByItem        []Bucket  `json:"byItem,omitempty"`
}

// Dashboard is the stock overview.
type Dashboard struct {
	TotalItems      int                 `json:"totalItems"`
	TotalUnits      int                 `json:"totalUnits"`
	LowStockCount   int                 `json:"lowStockCount"`
	OutOfStockCount int                 `json:"outOfStockCount"`
	LowStockItems   []inventory.ItemDTO `json:"lowStockItems"`
}
