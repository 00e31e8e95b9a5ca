package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sink receives committed changes in feed order.
type Sink interface {
	Deliver(ctx context.Context, change Change) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, change Change) error

func (f SinkFunc) Deliver(ctx context.Context, change Change) error {
	return f(ctx, change)
}

type channelPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// RedisSink fans changes out over a Redis pub/sub channel so every API
// instance can feed its own live hub.
type RedisSink struct {
	client  channelPublisher
	channel string
}

func NewRedisSink(client channelPublisher, channel string) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (s *RedisSink) Deliver(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change %d: %w", change.Seq, err)
	}
	return s.client.Publish(ctx, s.channel, payload)
}
