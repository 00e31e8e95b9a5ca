package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/catalog"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
)

const maxCategoryLength = 80

// MaxQuantity is the largest count a stock column holds.
const MaxQuantity = math.MaxInt32

// Service manages the item catalog.
type Service interface {
	ListItems(ctx context.Context) ([]ItemDTO, error)
	GetItem(ctx context.Context, id uuid.UUID) (*ItemDTO, error)
	CreateItem(ctx context.Context, actor access.Actor, input CreateItemInput) (*ItemDTO, error)
	UpdateItem(ctx context.Context, actor access.Actor, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error)
	DeleteItem(ctx context.Context, actor access.Actor, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo   *Repository
	db     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(repo *Repository, dbClient txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, db: dbClient, outbox: emitter, logg: logg}, nil
}

func (s *service) ListItems(ctx context.Context) ([]ItemDTO, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list items")
	}
	out := make([]ItemDTO, 0, len(items))
	for i := range items {
		out = append(out, *FromModel(&items[i]))
	}
	return out, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*ItemDTO, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "load item")
	}
	return FromModel(item), nil
}

func (s *service) CreateItem(ctx context.Context, actor access.Actor, input CreateItemInput) (*ItemDTO, error) {
	if err := access.Authorize(actor, access.OpEditItem); err != nil {
		return nil, err
	}
	display, key, err := catalog.CleanName(input.Name)
	if err != nil {
		return nil, err
	}
	category, err := cleanCategory(input.Category)
	if err != nil {
		return nil, err
	}
	if input.Location1Qty < 0 || input.Location2Qty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial quantities must not be negative")
	}
	if input.Location1Qty > MaxQuantity || input.Location2Qty > MaxQuantity {
		return nil, tooLarge("location1Qty/location2Qty")
	}
	if input.LowStockThreshold < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lowStockThreshold must not be negative")
	}
	if input.LowStockThreshold > MaxQuantity {
		return nil, tooLarge("lowStockThreshold")
	}

	item := &models.Item{
		Name:              display,
		NameKey:           key,
		Category:          category,
		Location1Qty:      input.Location1Qty,
		Location2Qty:      input.Location2Qty,
		LowStockThreshold: input.LowStockThreshold,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		taken, err := s.repo.NameTakenTx(tx, key, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return catalog.DuplicateName("item", display)
		}
		if err := s.repo.CreateTx(tx, item); err != nil {
			return err
		}
		return s.emitUpsert(ctx, tx, actor, item)
	})
	if err != nil {
		return nil, mapWriteError(display, err, "create item")
	}
	s.logChange(ctx, item.ID, "item created")
	return FromModel(item), nil
}

func (s *service) UpdateItem(ctx context.Context, actor access.Actor, id uuid.UUID, input UpdateItemInput) (*ItemDTO, error) {
	if err := access.Authorize(actor, access.OpEditItem); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	var display, key string
	if input.Name != nil {
		var err error
		display, key, err = catalog.CleanName(*input.Name)
		if err != nil {
			return nil, err
		}
		fields["name"] = display
		fields["name_key"] = key
	}
	if input.Category != nil {
		category, err := cleanCategory(*input.Category)
		if err != nil {
			return nil, err
		}
		fields["category"] = category
	}
	if input.LowStockThreshold != nil {
		if *input.LowStockThreshold < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "lowStockThreshold must not be negative")
		}
		if *input.LowStockThreshold > MaxQuantity {
			return nil, tooLarge("lowStockThreshold")
		}
		fields["low_stock_threshold"] = *input.LowStockThreshold
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no editable fields provided")
	}

	var updated *models.Item
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if key != "" {
			taken, err := s.repo.NameTakenTx(tx, key, id)
			if err != nil {
				return err
			}
			if taken {
				return catalog.DuplicateName("item", display)
			}
		}
		item, err := s.repo.UpdateDetailsTx(tx, id, fields)
		if err != nil {
			return err
		}
		updated = item
		return s.emitUpsert(ctx, tx, actor, item)
	})
	if err != nil {
		return nil, mapWriteError(display, err, "update item")
	}
	s.logChange(ctx, id, "item updated")
	return FromModel(updated), nil
}

// DeleteItem removes the item. Usage and purchase history keep the item name
// snapshot and are not touched.
func (s *service) DeleteItem(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	if err := access.Authorize(actor, access.OpDeleteItem); err != nil {
		return err
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.DeleteTx(tx, id); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			Collection: enums.CollectionItems,
			Op:         enums.ChangeDelete,
			RecordID:   id,
			ActorID:    &actor.UID,
		})
	})
	if err != nil {
		return mapStoreError(err, "delete item")
	}
	s.logChange(ctx, id, "item deleted")
	return nil
}

func (s *service) emitUpsert(ctx context.Context, tx *gorm.DB, actor access.Actor, item *models.Item) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		Collection: enums.CollectionItems,
		Op:         enums.ChangeUpsert,
		RecordID:   item.ID,
		ActorID:    &actor.UID,
		Data:       FromModel(item),
	})
}

func (s *service) logChange(ctx context.Context, id uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "item_id", id.String()), msg)
}

func cleanCategory(category string) (string, error) {
	trimmed := strings.TrimSpace(category)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if len([]rune(trimmed)) > maxCategoryLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "category is too long")
	}
	return trimmed, nil
}

func mapStoreError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func mapWriteError(name string, err error, msg string) error {
	if db.IsUniqueViolation(err, "ux_items_name_key") {
		return catalog.DuplicateName("item", name)
	}
	return mapStoreError(err, msg)
}

func tooLarge(field string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the maximum").
		WithDetails(map[string]any{"field": field, "max": MaxQuantity})
}
