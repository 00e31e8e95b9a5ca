package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/config"
	"github.com/ppetrack/ppetrack-backend/pkg/db/models"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultDeliverTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id int64) error
	MarkFailedTx(tx *gorm.DB, id int64, err error) error
	MarkTerminalTx(tx *gorm.DB, id int64, err error, terminalAttempts int) error
}

type PublisherParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Sink       Sink
	Metrics    *metrics.OutboxMetrics
	InstanceID string
}

// Publisher relays committed outbox rows to a Sink. Rows are delivered in id
// order; a failed delivery ends the batch so later changes never overtake it.
type Publisher struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	sink         Sink
	metrics      *metrics.OutboxMetrics
	instanceID   string
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Sink == nil {
		return nil, errors.New("sink is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Publisher{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		sink:         params.Sink,
		metrics:      params.Metrics,
		instanceID:   params.InstanceID,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (p *Publisher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.db.Ping(ctx); err != nil {
		p.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if p.instanceID != "" {
		ctx = p.logg.WithField(ctx, "instance_id", p.instanceID)
	}

	interval := p.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := p.ProcessBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// ProcessBatch delivers one batch and reports whether any row was handled.
func (p *Publisher) ProcessBatch(ctx context.Context) (bool, error) {
	processed := false
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := p.repo.FetchUnpublishedForPublish(tx, p.batchSize, p.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			fields := p.eventFields(event)
			if err := p.deliver(ctx, event); err != nil {
				p.metrics.IncPublished("failed")
				nextAttempt := event.AttemptCount + 1
				fields["attempt_count"] = nextAttempt

				if nextAttempt >= p.maxAttempts {
					fields["terminal_reason"] = "max_attempts"
					terminalErr := fmt.Errorf("max publish attempts reached: %w", err)
					logCtx := p.logg.WithField(p.logg.WithFields(ctx, fields), "error", err.Error())
					p.logg.Warn(logCtx, "outbox event will not be retried")
					if markErr := p.repo.MarkTerminalTx(tx, event.ID, terminalErr, p.maxAttempts); markErr != nil {
						return fmt.Errorf("mark terminal %d: %w", event.ID, markErr)
					}
					continue
				}

				logCtx := p.logg.WithField(p.logg.WithFields(ctx, fields), "error", err.Error())
				p.logg.Warn(logCtx, "outbox publish failed")
				if markErr := p.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
					return fmt.Errorf("mark failure %d: %w", event.ID, markErr)
				}
				return nil
			}

			if markErr := p.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
				return fmt.Errorf("mark published %d: %w", event.ID, markErr)
			}
			p.metrics.IncPublished("ok")
			p.logg.Debug(p.logg.WithFields(ctx, fields), "outbox event published")
		}
		return nil
	})
	return processed, err
}

func (p *Publisher) deliver(ctx context.Context, event models.OutboxEvent) error {
	deliverCtx, cancel := context.WithTimeout(ctx, defaultDeliverTimeout)
	defer cancel()
	return p.sink.Deliver(deliverCtx, ChangeFromRow(event))
}

func (p *Publisher) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID,
		"collection":    event.Collection,
		"op":            event.Op,
		"record_id":     event.RecordID.String(),
		"batch_size":    p.batchSize,
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
