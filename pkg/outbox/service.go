package outbox

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

// DomainEvent describes one change to queue in the caller's transaction.
type DomainEvent struct {
	Collection enums.Collection
	Op         enums.ChangeOp
	RecordID   uuid.UUID
	ActorID    *uuid.UUID
	// Data is the full record DTO for upserts; ignored for deletes.
	Data any
}

// Emitter queues outbox rows alongside the mutation that produced them.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.Collection.IsValid() {
		return errors.New("unknown collection")
	}
	if event.RecordID == uuid.Nil {
		return errors.New("record id is required")
	}

	payload := "{}"
	if event.Op == enums.ChangeUpsert {
		if event.Data == nil {
			return errors.New("upsert requires record data")
		}
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return err
		}
		payload = string(raw)
	}

	row := &models.OutboxEvent{
		Collection: event.Collection,
		Op:         event.Op,
		RecordID:   event.RecordID,
		Payload:    payload,
		ActorID:    event.ActorID,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		fields := map[string]any{
			"outbox_id":  row.ID,
			"collection": event.Collection,
			"op":         event.Op,
			"record_id":  event.RecordID.String(),
		}
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event queued")
	}
	return nil
}
