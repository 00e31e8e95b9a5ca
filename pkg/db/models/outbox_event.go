package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppetrack/ppetrack-backend/pkg/enums"
)

// OutboxEvent is one committed change to a subscribable collection. The
// auto-increment id doubles as the feed sequence number.
type OutboxEvent struct {
	ID           int64            `gorm:"column:id;primaryKey;autoIncrement"`
	Collection   enums.Collection `gorm:"column:collection;type:text;not null"`
	Op           enums.ChangeOp   `gorm:"column:op;type:text;not null"`
	RecordID     uuid.UUID        `gorm:"column:record_id;type:uuid;not null"`
	Payload      string           `gorm:"column:payload;not null"`
	ActorID      *uuid.UUID       `gorm:"column:actor_id;type:uuid"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time       `gorm:"column:published_at;index:ix_outbox_events_unpublished"`
	AttemptCount int              `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string          `gorm:"column:last_error"`
}
