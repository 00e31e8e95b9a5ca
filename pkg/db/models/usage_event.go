package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// UsageEvent records stock consumed by an employee on a machine. Name columns
// are snapshots taken when the event was logged.
type UsageEvent struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ItemID        uuid.UUID      `gorm:"column:item_id;type:uuid;not null;index:ix_usage_events_item_ts,priority:1"`
	ItemName      string         `gorm:"column:item_name;not null"`
	EmployeeID    uuid.UUID      `gorm:"column:employee_id;type:uuid;not null;index:ix_usage_events_employee_ts,priority:1"`
	EmployeeName  string         `gorm:"column:employee_name;not null"`
	MachineID     uuid.UUID      `gorm:"column:machine_id;type:uuid;not null;index:ix_usage_events_machine_ts,priority:1"`
	MachineName   string         `gorm:"column:machine_name;not null"`
	Location      enums.Location `gorm:"column:location;type:text;not null"`
	Quantity      int            `gorm:"column:quantity;not null;check:chk_usage_events_quantity,quantity > 0"`
	Notes         string         `gorm:"column:notes;not null"`
	LoggedBy      uuid.UUID      `gorm:"column:logged_by;type:uuid;not null"`
	LoggedByEmail string         `gorm:"column:logged_by_email;not null"`
	Timestamp     time.Time      `gorm:"column:logged_at;not null;index:ix_usage_events_item_ts,priority:2;index:ix_usage_events_employee_ts,priority:2;index:ix_usage_events_machine_ts,priority:2"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *UsageEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
