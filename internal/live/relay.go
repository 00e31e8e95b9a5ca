package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
)

// MessageStream is the receive side of a pub/sub subscription.
type MessageStream interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// SubscribeFunc opens a subscription on a pub/sub channel.
type SubscribeFunc func(ctx context.Context, channel string) (MessageStream, error)

type RedisRelayParams struct {
	Subscribe   SubscribeFunc
	Channel     string
	Hub         *Hub
	Logger      *logger.Logger
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// SeenSize bounds the set of recent outbox ids used to drop redeliveries.
	SeenSize int
}

const defaultSeenSize = 4096

// RedisRelay feeds the hub from the channel the outbox publisher writes to.
type RedisRelay struct {
	subscribe   SubscribeFunc
	channel     string
	hub         *Hub
	logg        *logger.Logger
	baseBackoff time.Duration
	maxBackoff  time.Duration
	seen        *lru.Cache[int64, struct{}]
}

func NewRedisRelay(params RedisRelayParams) (*RedisRelay, error) {
	if params.Subscribe == nil {
		return nil, fmt.Errorf("subscribe func required")
	}
	if params.Channel == "" {
		return nil, fmt.Errorf("channel required")
	}
	if params.Hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	base := params.BaseBackoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	maxBackoff := params.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}
	size := params.SeenSize
	if size <= 0 {
		size = defaultSeenSize
	}
	seen, err := lru.New[int64, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("seen set: %w", err)
	}
	return &RedisRelay{
		seen:        seen,
		subscribe:   params.Subscribe,
		channel:     params.Channel,
		hub:         params.Hub,
		logg:        params.Logger,
		baseBackoff: base,
		maxBackoff:  maxBackoff,
	}, nil
}

// Run subscribes and relays until ctx is cancelled. Changes published while
// the subscription is down are lost, so every reconnect resets the hub and
// subscribers reload their snapshots.
func (r *RedisRelay) Run(ctx context.Context) error {
	connected := false
	for {
		backoff := retry.WithCappedDuration(r.maxBackoff, retry.NewExponential(r.baseBackoff))
		var stream MessageStream
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			s, err := r.subscribe(ctx, r.channel)
			if err != nil {
				r.warn(ctx, "live relay subscribe failed", err)
				return retry.RetryableError(err)
			}
			stream = s
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if connected {
			r.hub.Reset(ErrRelayReset)
		}
		connected = true
		if r.logg != nil {
			r.logg.Info(r.logg.WithField(ctx, "channel", r.channel), "live relay subscribed")
		}

		r.consume(ctx, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context, stream MessageStream) {
	messages := stream.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(ctx context.Context, payload string) {
	var change outbox.Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		r.warn(ctx, "live relay dropped undecodable message", err)
		return
	}
	// Outbox ids are assigned at insert, not commit, so they can arrive out
	// of order; only exact repeats are dropped.
	if found, _ := r.seen.ContainsOrAdd(change.Seq, struct{}{}); found {
		return
	}
	_ = r.hub.Deliver(ctx, change)
}

func (r *RedisRelay) warn(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), msg)
}
