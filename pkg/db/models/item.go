package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Item is a stocked PPE article with independent quantities at both locations.
type Item struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name              string    `gorm:"column:name;not null"`
	NameKey           string    `gorm:"column:name_key;not null;uniqueIndex:ux_items_name_key"`
	Category          string    `gorm:"column:category;not null"`
	Location1Qty      int       `gorm:"column:location1_qty;not null;check:chk_items_location1_qty,location1_qty >= 0"`
	Location2Qty      int       `gorm:"column:location2_qty;not null;check:chk_items_location2_qty,location2_qty >= 0"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;check:chk_items_low_stock_threshold,low_stock_threshold >= 0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Item) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TotalStock sums both locations.
func (i Item) TotalStock() int {
	return i.Location1Qty + i.Location2Qty
}
