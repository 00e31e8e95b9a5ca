package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppetrack/ppetrack-backend/pkg/config"
)

// memStore is an in-memory cmdable. Counters and strings share one keyspace
// like they do on a server.
type memStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	sent   map[string][]string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}, ttls: map[string]time.Duration{}, sent: map[string][]string{}}
}

func (m *memStore) Ping(context.Context) *redis.StatusCmd { return redis.NewStatusResult("PONG", nil) }

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.values[key], m.ttls[key] = fmt.Sprint(value), ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memStore) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := m.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *memStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.Set(ctx, key, value, ttl)
	return redis.NewBoolResult(true, nil)
}

func (m *memStore) Incr(_ context.Context, key string) *redis.IntCmd {
	var n int64
	fmt.Sscan(m.values[key], &n)
	n++
	m.values[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (m *memStore) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *memStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			n++
		}
		delete(m.values, k)
		delete(m.ttls, k)
	}
	return redis.NewIntResult(n, nil)
}

func (m *memStore) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	m.sent[channel] = append(m.sent[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

func TestFixedWindowAllowCountsAgainstLimit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	client := &Client{store: store}

	var results []bool
	for i := 0; i < 3; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "login:ip:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, i+1, count)
		results = append(results, allowed)
	}
	assert.Equal(t, []bool{true, true, false}, results)
	assert.Equal(t, time.Minute, store.ttls["ppe:rate_limit:login:ip:10.0.0.1"])
}

func TestFixedWindowExpiresOnlyOnFirstHit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	client := &Client{store: store}
	key := client.RateLimitKey("register:email:x")

	_, _, err := client.FixedWindowAllow(ctx, "register:email:x", 5, time.Minute)
	require.NoError(t, err)
	store.ttls[key] = 0
	_, _, err = client.FixedWindowAllow(ctx, "register:email:x", 5, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, store.ttls[key], "second hit must not extend the window")
}

func TestIdempotencyRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMemStore()}
	key := client.IdempotencyKey("user|POST|/api/v1/usage", "abc")

	claimed, err := client.SetNX(ctx, key, "pending", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = client.SetNX(ctx, key, "other", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, client.Set(ctx, key, "done", time.Hour))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPublishTargetsNamespacedChannel(t *testing.T) {
	store := newMemStore()
	client := &Client{store: store}

	require.NoError(t, client.Publish(context.Background(), client.ChannelName("changes"), `{"seq":1}`))
	assert.Equal(t, []string{`{"seq":1}`}, store.sent["ppe:channel:changes"])
}

func TestZeroClient(t *testing.T) {
	var client *Client
	ctx := context.Background()

	assert.ErrorIs(t, client.Ping(ctx), ErrNotConnected)
	assert.ErrorIs(t, client.Set(ctx, "k", "v", 0), ErrNotConnected)
	_, _, err := client.FixedWindowAllow(ctx, "s", 1, time.Second)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = (&Client{}).Subscribe(ctx, "x")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, client.Close())
}

func TestKeyLayout(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "ppe:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "ppe:idempotency:scope", client.IdempotencyKey("scope", ""))
	assert.Equal(t, "ppe:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "ppe:session:access:jti", client.AccessSessionKey("jti"))
	assert.Equal(t, "ppe:lock:cron:prod", client.LockKey("cron:prod"))
}

func TestOptionsFromConfigFillsUnsetValues(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:urlpass@cache:6380/2?dial_timeout=2s",
		Password:    "cfgpass",
		PoolSize:    7,
		DialTimeout: 9 * time.Second,
		ReadTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "urlpass", opts.Password)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 3*time.Second, opts.ReadTimeout)

	_, err = optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)
}
