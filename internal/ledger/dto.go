package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
)

// LogFilter narrows a log listing. Field is a DTO key compared with Value
// case-insensitively; From and To bound the event time, To exclusive.
type LogFilter struct {
	Field string
	Value string
	From  *time.Time
	To    *time.Time
}

func (f LogFilter) validate() error {
	if (f.Field == "") != (f.Value == "") {
		return pkgerrors.New(pkgerrors.CodeValidation, "field and value must be provided together")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	return nil
}

// UsageEventDTO is the transport shape of a usage log entry.
type UsageEventDTO struct {
	ID            uuid.UUID      `json:"id"`
	ItemID        uuid.UUID      `json:"itemId"`
	ItemName      string         `json:"itemName"`
	EmployeeID    uuid.UUID      `json:"employeeId"`
	EmployeeName  string         `json:"employeeName"`
	MachineID     uuid.UUID      `json:"machineId"`
	MachineName   string         `json:"machineName"`
	Location      enums.Location `json:"location"`
	Quantity      int            `json:"quantity"`
	Notes         string         `json:"notes"`
	LoggedBy      uuid.UUID      `json:"loggedBy"`
	LoggedByEmail string         `json:"loggedByEmail"`
	Timestamp     time.Time      `json:"timestamp"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func UsageFromModel(e *models.UsageEvent) *UsageEventDTO {
	if e == nil {
		return nil
	}
	return &UsageEventDTO{
		ID:            e.ID,
		ItemID:        e.ItemID,
		ItemName:      e.ItemName,
		EmployeeID:    e.EmployeeID,
		EmployeeName:  e.EmployeeName,
		MachineID:     e.MachineID,
		MachineName:   e.MachineName,
		Location:      e.Location,
		Quantity:      e.Quantity,
		Notes:         e.Notes,
		LoggedBy:      e.LoggedBy,
		LoggedByEmail: e.LoggedByEmail,
		Timestamp:     e.Timestamp.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
}

// PurchaseEventDTO is the transport shape of a restock record. TotalCost is a
// fixed two-decimal string.
type PurchaseEventDTO struct {
	ID                uuid.UUID      `json:"id"`
	ItemID            uuid.UUID      `json:"itemId"`
	ItemName          string         `json:"itemName"`
	Quantity          int            `json:"quantity"`
	TotalCost         string         `json:"totalCost"`
	SupplierID        uuid.UUID      `json:"supplierId"`
	SupplierName      string         `json:"supplierName"`
	Location          enums.Location `json:"location"`
	LoggedBy          uuid.UUID      `json:"loggedBy"`
	LoggedByEmail     string         `json:"loggedByEmail"`
	PurchaseTimestamp time.Time      `json:"purchaseTimestamp"`
}

func PurchaseFromModel(e *models.PurchaseEvent) *PurchaseEventDTO {
	if e == nil {
		return nil
	}
	return &PurchaseEventDTO{
		ID:                e.ID,
		ItemID:            e.ItemID,
		ItemName:          e.ItemName,
		Quantity:          e.Quantity,
		TotalCost:         e.TotalCost.StringFixed(2),
		SupplierID:        e.SupplierID,
		SupplierName:      e.SupplierName,
		Location:          e.Location,
		LoggedBy:          e.LoggedBy,
		LoggedByEmail:     e.LoggedByEmail,
		PurchaseTimestamp: e.PurchaseTimestamp.UTC(),
	}
}

type RecordUsageInput struct {
	ItemID     uuid.UUID
	EmployeeID uuid.UUID
	MachineID  uuid.UUID
	Location   string
	Quantity   int
	Notes      string
}

type RecordRestockInput struct {
	ItemID     uuid.UUID
	SupplierID uuid.UUID
	Location   string
	Quantity   int
	TotalCost  decimal.Decimal
}

// EditUsageInput overwrites the correctable fields of a usage entry.
type EditUsageInput struct {
	EmployeeID uuid.UUID
	Location   string
	Quantity   int
}

// DeleteResult reports a removed usage entry. Stock is never restored, so
// StockAdjusted is always false.
type DeleteResult struct {
	ID            uuid.UUID `json:"id"`
	StockAdjusted bool      `json:"stockAdjusted"`
}
