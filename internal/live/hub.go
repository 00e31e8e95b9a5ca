// Package live fans committed changes out to subscribers as a snapshot
// followed by ordered deltas.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
	"github.com/ppetrack/ppetrack-backend/pkg/metrics"
	"github.com/ppetrack/ppetrack-backend/pkg/outbox"
)

const defaultBuffer = 256

var (
	// ErrLagged closes a subscription whose buffer overflowed. The client
	// must resubscribe to get a fresh snapshot.
	ErrLagged = errors.New("subscription lagged behind the change feed")
	// ErrRelayReset closes every subscription after the relay lost changes.
	ErrRelayReset = errors.New("change feed relay reconnected")
)

// SnapshotFunc loads the current records of one collection. Sources may
// narrow by filter; the hub matches every record against it again.
type SnapshotFunc func(ctx context.Context, filter Filter) ([]any, error)

type HubParams struct {
	Sources map[enums.Collection]SnapshotFunc
	Buffer  int
	Metrics *metrics.LiveMetrics
	Logger  *logger.Logger
}

// Hub tracks subscribers per collection and implements outbox.Sink.
type Hub struct {
	mu      sync.RWMutex
	subs    map[enums.Collection]map[*Subscription]struct{}
	sources map[enums.Collection]SnapshotFunc
	buffer  int
	metrics *metrics.LiveMetrics
	logg    *logger.Logger
}

var _ outbox.Sink = (*Hub)(nil)

func NewHub(params HubParams) (*Hub, error) {
	if len(params.Sources) == 0 {
		return nil, fmt.Errorf("snapshot sources required")
	}
	buffer := params.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:    map[enums.Collection]map[*Subscription]struct{}{},
		sources: params.Sources,
		buffer:  buffer,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

// Subscribe registers a subscriber and then takes the snapshot, so any change
// committed while the snapshot loads is buffered as a delta. Cancelling ctx
// closes the subscription.
func (h *Hub) Subscribe(ctx context.Context, actor access.Actor, collection enums.Collection, filter Filter) (*Subscription, error) {
	op := access.OpRead
	if collection == enums.CollectionUsers {
		op = access.OpManageRoles
	}
	if err := access.Authorize(actor, op); err != nil {
		return nil, err
	}
	source, ok := h.sources[collection]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown collection").
			WithDetails(map[string]any{"collection": collection})
	}
	if err := filter.validate(collection); err != nil {
		return nil, err
	}

	sub := &Subscription{
		hub:        h,
		collection: collection,
		filter:     filter,
		ch:         make(chan outbox.Change, h.buffer),
		done:       make(chan struct{}),
	}
	h.add(sub)

	records, err := source(ctx, filter)
	if err != nil {
		h.remove(sub, nil)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load snapshot")
	}
	for _, record := range records {
		raw, err := json.Marshal(record)
		if err != nil {
			h.remove(sub, nil)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode snapshot")
		}
		if filter.Matches(collection, raw) {
			sub.snapshot = append(sub.snapshot, raw)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			h.remove(sub, nil)
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Deliver forwards change to every matching subscriber of its collection.
// Deletes are always forwarded since the deleted record can no longer be
// matched. A subscriber with a full buffer is closed with ErrLagged.
func (h *Hub) Deliver(ctx context.Context, change outbox.Change) error {
	var lagging []*Subscription
	h.mu.RLock()
	for sub := range h.subs[change.Collection] {
		if change.Op == enums.ChangeUpsert && !sub.filter.Matches(change.Collection, change.Record) {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			lagging = append(lagging, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range lagging {
		h.metrics.IncLagged(string(sub.collection))
		if h.logg != nil {
			h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
				"collection": sub.collection,
				"seq":        change.Seq,
			}), "live subscriber lagged")
		}
		h.remove(sub, ErrLagged)
	}
	return nil
}

// Reset closes every subscription with err.
func (h *Hub) Reset(err error) {
	h.mu.RLock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range all {
		h.remove(sub, err)
	}
}

// Subscribers returns the number of open subscriptions to collection.
func (h *Hub) Subscribers(collection enums.Collection) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[collection])
}

func (h *Hub) add(sub *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[sub.collection]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[sub.collection] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.SubscriberAdded(string(sub.collection))
}

// remove detaches sub and closes its channel. It runs under the write lock so
// no Deliver can be sending on the channel while it closes.
func (h *Hub) remove(sub *Subscription, cause error) {
	h.mu.Lock()
	set := h.subs[sub.collection]
	if _, ok := set[sub]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.collection)
	}
	sub.finish(cause)
	h.mu.Unlock()
	h.metrics.SubscriberRemoved(string(sub.collection))
}

// Subscription is one open live view.
type Subscription struct {
	hub        *Hub
	collection enums.Collection
	filter     Filter
	snapshot   []json.RawMessage
	ch         chan outbox.Change
	done       chan struct{}

	mu  sync.Mutex
	err error
}

func (s *Subscription) Collection() enums.Collection {
	return s.collection
}

// Snapshot returns the records that matched the filter at subscribe time.
func (s *Subscription) Snapshot() []json.RawMessage {
	return s.snapshot
}

// C yields deltas in feed order. It is closed when the subscription ends.
func (s *Subscription) C() <-chan outbox.Change {
	return s.ch
}

// Err reports why the subscription ended; nil after a normal close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.hub.remove(s, nil)
}

func (s *Subscription) finish(cause error) {
	s.mu.Lock()
	s.err = cause
	s.mu.Unlock()
	close(s.ch)
	close(s.done)
}
