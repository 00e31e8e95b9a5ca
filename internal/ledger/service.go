package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/internal/inventory"
	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
	"github.com/ppetrack/ppetrack-backend/pkg/pagination"
)

const (
	maxNotesLength = 500

	opUsage   = "usage"
	opRestock = "restock"
	opEdit    = "edit_usage"
	opDelete  = "delete_usage"
)

// Service applies stock transactions and corrections to the usage log.
type Service interface {
	RecordUsage(ctx context.Context, actor access.Actor, input RecordUsageInput) (*UsageEventDTO, error)
	RecordRestock(ctx context.Context, actor access.Actor, input RecordRestockInput) (*PurchaseEventDTO, error)
	EditUsageEvent(ctx context.Context, actor access.Actor, id uuid.UUID, input EditUsageInput) (*UsageEventDTO, error)
	DeleteUsageEvent(ctx context.Context, actor access.Actor, id uuid.UUID) (*DeleteResult, error)
	ListUsage(ctx context.Context, params pagination.Params, filter LogFilter) (pagination.Page[UsageEventDTO], error)
	ListPurchases(ctx context.Context, params pagination.Params, filter LogFilter) (pagination.Page[PurchaseEventDTO], error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo    *Repository
	Items   *inventory.Repository
	Catalog *catalog.Repository
	DB      txRunner
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Config  config.LedgerConfig
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type service struct {
	repo    *Repository
	items   *inventory.Repository
	catalog *catalog.Repository
	db      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	cfg     config.LedgerConfig
	clock   func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := params.Config
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 20 * time.Millisecond
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		items:   params.Items,
		catalog: params.Catalog,
		db:      params.DB,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     cfg,
		clock:   clock,
	}, nil
}

// RecordUsage decrements the item's stock at the given location and appends
// the matching usage event in one transaction.
func (s *service) RecordUsage(ctx context.Context, actor access.Actor, input RecordUsageInput) (*UsageEventDTO, error) {
	if err := access.Authorize(actor, access.OpRecordUsage); err != nil {
		return nil, err
	}
	location, err := validateStockInput(input.ItemID, input.Location, input.Quantity)
	if err != nil {
		return nil, err
	}
	if input.EmployeeID == uuid.Nil || input.MachineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employeeId and machineId are required")
	}
	notes := strings.TrimSpace(input.Notes)
	if len([]rune(notes)) > maxNotesLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are too long").
			WithDetails(map[string]any{"maxLength": maxNotesLength})
	}

	ctx = s.stockFields(ctx, input.ItemID, location, input.Quantity)
	var event *models.UsageEvent
	err = s.runTx(ctx, opUsage, func(tx *gorm.DB) error {
		item, err := s.lockItem(tx, input.ItemID)
		if err != nil {
			return err
		}
		employee, err := s.findCatalog(tx, enums.CatalogEmployees, input.EmployeeID)
		if err != nil {
			return err
		}
		machine, err := s.findCatalog(tx, enums.CatalogMachines, input.MachineID)
		if err != nil {
			return err
		}

		if available := quantityAt(item, location); available < input.Quantity {
			return insufficientStock(available)
		}
		ok, err := s.items.AdjustStockTx(tx, item.ID, location, -input.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.items.FindByIDTx(tx, item.ID)
			if err != nil {
				return err
			}
			return insufficientStock(quantityAt(current, location))
		}

		event = &models.UsageEvent{
			ItemID:        item.ID,
			ItemName:      item.Name,
			EmployeeID:    employee.ID,
			EmployeeName:  employee.Name,
			MachineID:     machine.ID,
			MachineName:   machine.Name,
			Location:      location,
			Quantity:      input.Quantity,
			Notes:         notes,
			LoggedBy:      actor.UID,
			LoggedByEmail: actor.Email,
			Timestamp:     s.now(),
		}
		if err := s.repo.InsertUsageTx(tx, event); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, actor, enums.CollectionUsageLog, event.ID, UsageFromModel(event)); err != nil {
			return err
		}
		return s.emitItem(ctx, tx, actor, item.ID)
	})
	if err != nil {
		return nil, err
	}
	return UsageFromModel(event), nil
}

// RecordRestock increments the item's stock and appends the purchase event.
func (s *service) RecordRestock(ctx context.Context, actor access.Actor, input RecordRestockInput) (*PurchaseEventDTO, error) {
	if err := access.Authorize(actor, access.OpRestock); err != nil {
		return nil, err
	}
	location, err := validateStockInput(input.ItemID, input.Location, input.Quantity)
	if err != nil {
		return nil, err
	}
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplierId is required")
	}
	if err := validateCost(input.TotalCost); err != nil {
		return nil, err
	}

	ctx = s.stockFields(ctx, input.ItemID, location, input.Quantity)
	var event *models.PurchaseEvent
	err = s.runTx(ctx, opRestock, func(tx *gorm.DB) error {
		item, err := s.lockItem(tx, input.ItemID)
		if err != nil {
			return err
		}
		supplier, err := s.findCatalog(tx, enums.CatalogSuppliers, input.SupplierID)
		if err != nil {
			return err
		}
		if quantityAt(item, location) > inventory.MaxQuantity-input.Quantity {
			return pkgerrors.New(pkgerrors.CodeValidation, "restock would exceed the maximum stock").
				WithDetails(map[string]any{"available": quantityAt(item, location), "max": inventory.MaxQuantity})
		}
		ok, err := s.items.AdjustStockTx(tx, item.ID, location, input.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}

		event = &models.PurchaseEvent{
			ItemID:            item.ID,
			ItemName:          item.Name,
			Quantity:          input.Quantity,
			TotalCost:         input.TotalCost,
			SupplierID:        supplier.ID,
			SupplierName:      supplier.Name,
			Location:          location,
			LoggedBy:          actor.UID,
			LoggedByEmail:     actor.Email,
			PurchaseTimestamp: s.now(),
		}
		if err := s.repo.InsertPurchaseTx(tx, event); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, actor, enums.CollectionPurchaseLog, event.ID, PurchaseFromModel(event)); err != nil {
			return err
		}
		return s.emitItem(ctx, tx, actor, item.ID)
	})
	if err != nil {
		return nil, err
	}
	return PurchaseFromModel(event), nil
}

// EditUsageEvent corrects a usage entry in place. Item stock is not touched.
func (s *service) EditUsageEvent(ctx context.Context, actor access.Actor, id uuid.UUID, input EditUsageInput) (*UsageEventDTO, error) {
	if err := access.Authorize(actor, access.OpEditUsageLog); err != nil {
		return nil, err
	}
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employeeId is required")
	}
	if err := validateQuantity(input.Quantity); err != nil {
		return nil, err
	}
	location, err := enums.ParseLocation(input.Location)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}

	var updated *models.UsageEvent
	err = s.runTx(ctx, opEdit, func(tx *gorm.DB) error {
		employee, err := s.findCatalog(tx, enums.CatalogEmployees, input.EmployeeID)
		if err != nil {
			return err
		}
		event, err := s.repo.UpdateUsageTx(tx, id, map[string]any{
			"employee_id":   employee.ID,
			"employee_name": employee.Name,
			"quantity":      input.Quantity,
			"location":      location,
		})
		if err != nil {
			return notFoundOr(err, "usage event not found")
		}
		updated = event
		return s.emit(ctx, tx, actor, enums.CollectionUsageLog, event.ID, UsageFromModel(event))
	})
	if err != nil {
		return nil, err
	}
	return UsageFromModel(updated), nil
}

// DeleteUsageEvent removes a usage entry without restoring stock.
func (s *service) DeleteUsageEvent(ctx context.Context, actor access.Actor, id uuid.UUID) (*DeleteResult, error) {
	if err := access.Authorize(actor, access.OpEditUsageLog); err != nil {
		return nil, err
	}
	err := s.runTx(ctx, opDelete, func(tx *gorm.DB) error {
		if err := s.repo.DeleteUsageTx(tx, id); err != nil {
			return notFoundOr(err, "usage event not found")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			Collection: enums.CollectionUsageLog,
			Op:         enums.ChangeDelete,
			RecordID:   id,
			ActorID:    &actor.UID,
		})
	})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{ID: id, StockAdjusted: false}, nil
}

func (s *service) ListUsage(ctx context.Context, params pagination.Params, filter LogFilter) (pagination.Page[UsageEventDTO], error) {
	if err := filter.validate(); err != nil {
		return pagination.Page[UsageEventDTO]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[UsageEventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListUsage(ctx, pagination.LimitWithBuffer(params.Limit), cursor, filter)
	if err != nil {
		return pagination.Page[UsageEventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list usage events")
	}
	dtos := make([]UsageEventDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *UsageFromModel(&rows[i]))
	}
	return pagination.BuildPage(dtos, params.Limit, func(d UsageEventDTO) pagination.Cursor {
		return pagination.Cursor{At: d.Timestamp, ID: d.ID}
	}), nil
}

func (s *service) ListPurchases(ctx context.Context, params pagination.Params, filter LogFilter) (pagination.Page[PurchaseEventDTO], error) {
	if err := filter.validate(); err != nil {
		return pagination.Page[PurchaseEventDTO]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[PurchaseEventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListPurchases(ctx, pagination.LimitWithBuffer(params.Limit), cursor, filter)
	if err != nil {
		return pagination.Page[PurchaseEventDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchase events")
	}
	dtos := make([]PurchaseEventDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *PurchaseFromModel(&rows[i]))
	}
	return pagination.BuildPage(dtos, params.Limit, func(d PurchaseEventDTO) pagination.Cursor {
		return pagination.Cursor{At: d.PurchaseTimestamp, ID: d.ID}
	}), nil
}

func (s *service) lockItem(tx *gorm.DB, id uuid.UUID) (*models.Item, error) {
	item, err := s.items.LockByIDTx(tx, id)
	if err != nil {
		return nil, notFoundOr(err, "item not found")
	}
	return item, nil
}

func (s *service) findCatalog(tx *gorm.DB, kind enums.CatalogKind, id uuid.UUID) (*models.CatalogEntry, error) {
	entry, err := s.catalog.FindByIDTx(tx, kind, id)
	if err != nil {
		return nil, notFoundOr(err, kind.Singular()+" not found")
	}
	return entry, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor access.Actor, collection enums.Collection, id uuid.UUID, data any) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		Collection: collection,
		Op:         enums.ChangeUpsert,
		RecordID:   id,
		ActorID:    &actor.UID,
		Data:       data,
	})
}

func (s *service) emitItem(ctx context.Context, tx *gorm.DB, actor access.Actor, id uuid.UUID) error {
	item, err := s.items.FindByIDTx(tx, id)
	if err != nil {
		return err
	}
	return s.emit(ctx, tx, actor, enums.CollectionItems, id, inventory.FromModel(item))
}

func (s *service) stockFields(ctx context.Context, itemID uuid.UUID, location enums.Location, quantity int) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"item_id":  itemID.String(),
		"location": location,
		"quantity": quantity,
	})
}

func (s *service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func validateStockInput(itemID uuid.UUID, rawLocation string, quantity int) (enums.Location, error) {
	if itemID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "itemId is required")
	}
	if err := validateQuantity(quantity); err != nil {
		return "", err
	}
	location, err := enums.ParseLocation(rawLocation)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid location")
	}
	return location, nil
}

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	if quantity > inventory.MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the maximum").
			WithDetails(map[string]any{"max": inventory.MaxQuantity})
	}
	return nil
}

func validateCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "totalCost must not be negative")
	}
	if !cost.Equal(cost.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "totalCost must have at most two decimal places")
	}
	return nil
}

func quantityAt(item *models.Item, location enums.Location) int {
	if location == enums.Location2 {
		return item.Location2Qty
	}
	return item.Location1Qty
}

func insufficientStock(available int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{"available": available})
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
