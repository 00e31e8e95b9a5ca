package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"gorm.io/gorm"
)

const defaultOutboxRetention = 7 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	PruneDelivered(tx *gorm.DB, before time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Outbox    outboxPruner
	Retention time.Duration
}

// OutboxRetentionJob deletes change-feed rows that were delivered more than
// Retention ago. Undelivered rows are never touched.
type OutboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	outbox    outboxPruner
	retention time.Duration
	now       func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (*OutboxRetentionJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil || params.Outbox == nil {
		return nil, errors.New("db and outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &OutboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		outbox:    params.Outbox,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var pruned int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.PruneDelivered(tx, cutoff)
		pruned = n
		return err
	})
	if err != nil {
		return fmt.Errorf("prune delivered outbox rows: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff": cutoff,
		"pruned": pruned,
	}), "outbox retention complete")
	return nil
}
