package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/ppetrack/ppetrack-backend/pkg/db"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
)

const maxBackoff = time.Second

// runTx executes fn in a transaction detached from the caller's cancellation,
// retrying lock contention with capped exponential backoff.
func (s *service) runTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	started := time.Now()
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TxTimeout)
	defer cancel()

	backoff := retry.NewExponential(s.cfg.BaseBackoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(maxBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(s.cfg.MaxRetries), backoff)

	attempt := 0
	err := retry.Do(txCtx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			s.metrics.IncRetry(op)
		}
		attempt++
		err := s.db.WithTx(ctx, fn)
		if db.IsRetryableTxError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	err = classifyTxError(err, op)
	s.observe(ctx, op, err, attempt, time.Since(started))
	return err
}

func classifyTxError(err error, op string) error {
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	if db.IsRetryableTxError(err) || errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTxConflict, err, "transaction failed, please retry")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" transaction failed")
}

func (s *service) observe(ctx context.Context, op string, err error, attempts int, elapsed time.Duration) {
	outcome := metrics.OutcomeCommitted
	switch {
	case err == nil:
	case pkgerrors.Is(err, pkgerrors.CodeTxConflict):
		outcome = metrics.OutcomeConflict
	case pkgerrors.Is(err, pkgerrors.CodeDependency):
		outcome = metrics.OutcomeError
	default:
		outcome = metrics.OutcomeRejected
	}
	s.metrics.ObserveTransaction(op, outcome, elapsed)

	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"op":       op,
		"outcome":  outcome,
		"attempts": attempts,
		"elapsed":  elapsed.String(),
	})
	switch outcome {
	case metrics.OutcomeCommitted:
		s.logg.Info(logCtx, "ledger transaction committed")
	case metrics.OutcomeRejected:
		s.logg.Warn(s.logg.WithField(logCtx, "code", pkgerrors.CodeOf(err)), "ledger transaction rejected")
	default:
		s.logg.Error(logCtx, "ledger transaction failed", err)
	}
}
