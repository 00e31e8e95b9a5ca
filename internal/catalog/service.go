package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/pkg/db"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
)

// Service manages employees, machines and suppliers.
type Service interface {
	List(ctx context.Context, kind enums.CatalogKind) ([]EntryDTO, error)
	Get(ctx context.Context, kind enums.CatalogKind, id uuid.UUID) (*EntryDTO, error)
	Create(ctx context.Context, actor access.Actor, kind enums.CatalogKind, name string) (*EntryDTO, error)
	Rename(ctx context.Context, actor access.Actor, kind enums.CatalogKind, id uuid.UUID, name string) (*EntryDTO, error)
	Delete(ctx context.Context, actor access.Actor, kind enums.CatalogKind, id uuid.UUID) error
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
		return nil, fmt.Errorf("catalog repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{repo: repo, db: dbClient, outbox: emitter, logg: logg}, nil
}

func (s *service) List(ctx context.Context, kind enums.CatalogKind) ([]EntryDTO, error) {
	if !kind.IsValid() {
		return nil, invalidKind(kind)
	}
	rows, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list catalog")
	}
	out := make([]EntryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(kind, &rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, kind enums.CatalogKind, id uuid.UUID) (*EntryDTO, error) {
	if !kind.IsValid() {
		return nil, invalidKind(kind)
	}
	row, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, mapStoreError(kind, err, "load catalog entry")
	}
	return FromModel(kind, row), nil
}

func (s *service) Create(ctx context.Context, actor access.Actor, kind enums.CatalogKind, name string) (*EntryDTO, error) {
	if err := access.Authorize(actor, access.OpManageCatalog); err != nil {
		return nil, err
	}
	if !kind.IsValid() {
		return nil, invalidKind(kind)
	}
	display, key, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	entry := &models.CatalogEntry{Name: display, NameKey: key}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		taken, err := s.repo.NameTakenTx(tx, kind, key, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return DuplicateName(kind.Singular(), display)
		}
		if err := s.repo.CreateTx(tx, kind, entry); err != nil {
			return err
		}
		return s.emitUpsert(ctx, tx, actor, kind, entry)
	})
	if err != nil {
		return nil, mapWriteError(kind, display, err, "create catalog entry")
	}
	s.logChange(ctx, kind, entry.ID, "catalog entry created")
	return FromModel(kind, entry), nil
}

func (s *service) Rename(ctx context.Context, actor access.Actor, kind enums.CatalogKind, id uuid.UUID, name string) (*EntryDTO, error) {
	if err := access.Authorize(actor, access.OpManageCatalog); err != nil {
		return nil, err
	}
	if !kind.IsValid() {
		return nil, invalidKind(kind)
	}
	display, key, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	var updated *models.CatalogEntry
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		taken, err := s.repo.NameTakenTx(tx, kind, key, id)
		if err != nil {
			return err
		}
		if taken {
			return DuplicateName(kind.Singular(), display)
		}
		row, err := s.repo.RenameTx(tx, kind, id, display, key)
		if err != nil {
			return err
		}
		updated = row
		return s.emitUpsert(ctx, tx, actor, kind, row)
	})
	if err != nil {
		return nil, mapWriteError(kind, display, err, "rename catalog entry")
	}
	s.logChange(ctx, kind, id, "catalog entry renamed")
	return FromModel(kind, updated), nil
}

// Delete removes the entry unconditionally. Events that reference it keep
// their name snapshots.
func (s *service) Delete(ctx context.Context, actor access.Actor, kind enums.CatalogKind, id uuid.UUID) error {
	if err := access.Authorize(actor, access.OpManageCatalog); err != nil {
		return err
	}
	if !kind.IsValid() {
		return invalidKind(kind)
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.DeleteTx(tx, kind, id); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			Collection: enums.CollectionForCatalog(kind),
			Op:         enums.ChangeDelete,
			RecordID:   id,
			ActorID:    &actor.UID,
		})
	})
	if err != nil {
		return mapStoreError(kind, err, "delete catalog entry")
	}
	s.logChange(ctx, kind, id, "catalog entry deleted")
	return nil
}

func (s *service) emitUpsert(ctx context.Context, tx *gorm.DB, actor access.Actor, kind enums.CatalogKind, entry *models.CatalogEntry) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		Collection: enums.CollectionForCatalog(kind),
		Op:         enums.ChangeUpsert,
		RecordID:   entry.ID,
		ActorID:    &actor.UID,
		Data:       FromModel(kind, entry),
	})
}

func (s *service) logChange(ctx context.Context, kind enums.CatalogKind, id uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"kind": kind, "entry_id": id.String()}), msg)
}

func invalidKind(kind enums.CatalogKind) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown catalog kind").
		WithDetails(map[string]any{"kind": kind})
}

func mapStoreError(kind enums.CatalogKind, err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, kind.Singular()+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func mapWriteError(kind enums.CatalogKind, name string, err error, msg string) error {
	if db.IsUniqueViolation(err, "ux_"+kind.String()+"_name_key") {
		return DuplicateName(kind.Singular(), name)
	}
	return mapStoreError(kind, err, msg)
}
