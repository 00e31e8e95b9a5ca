package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// PurchaseEvent records a restock from a supplier. Rows are never updated.
type PurchaseEvent struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ItemID            uuid.UUID       `gorm:"column:item_id;type:uuid;not null;index:ix_purchase_events_item_ts,priority:1"`
	ItemName          string          `gorm:"column:item_name;not null"`
	Quantity          int             `gorm:"column:quantity;not null;check:chk_purchase_events_quantity,quantity > 0"`
	TotalCost         decimal.Decimal `gorm:"column:total_cost;type:numeric(12,2);not null;check:chk_purchase_events_total_cost,total_cost >= 0"`
	SupplierID        uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null;index:ix_purchase_events_supplier_ts,priority:1"`
	SupplierName      string          `gorm:"column:supplier_name;not null"`
	Location          enums.Location  `gorm:"column:location;type:text;not null"`
	LoggedBy          uuid.UUID       `gorm:"column:logged_by;type:uuid;not null"`
	LoggedByEmail     string          `gorm:"column:logged_by_email;not null"`
	PurchaseTimestamp time.Time       `gorm:"column:purchase_timestamp;not null;index:ix_purchase_events_item_ts,priority:2;index:ix_purchase_events_supplier_ts,priority:2"`
}

func (e *PurchaseEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
