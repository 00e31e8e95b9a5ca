package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ppetrack/ppetrack-backend/api/responses"
	"github.com/ppetrack/ppetrack-backend/internal/access"
	"github.com/ppetrack/ppetrack-backend/internal/live"
	"github.com/ppetrack/ppetrack-backend/internal/reports"
	"github.com/ppetrack/ppetrack-backend/pkg/enums"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

const defaultHeartbeat = 25 * time.Second

type subscriber interface {
	Subscribe(ctx context.Context, actor access.Actor, collection enums.Collection, filter live.Filter) (*live.Subscription, error)
}

// LiveStream serves a collection as Server-Sent Events: one "snapshot" event
// with the filtered records, then one event per change named after its op.
// The stream ends with "lagged" or "reset" when the hub drops the subscriber;
// the client reconnects to get a fresh snapshot.
func LiveStream(hub subscriber, heartbeat time.Duration, logg *logger.Logger) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		collection, err := enums.ParseCollection(chi.URLParam(r, "collection"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown collection"))
			return
		}
		filter, err := liveFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := hub.Subscribe(r.Context(), actor, collection, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer sub.Close()

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		ctx := logg.WithField(r.Context(), "collection", collection)
		logg.Info(ctx, "live.subscribed")

		snapshot := sub.Snapshot()
		if snapshot == nil {
			snapshot = []json.RawMessage{}
		}
		if err := writeEvent(w, rc, "", "snapshot", snapshot); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := rc.Flush(); err != nil {
					return
				}
			case change, ok := <-sub.C():
				if !ok {
					endStream(ctx, w, rc, sub.Err(), logg)
					return
				}
				if err := writeEvent(w, rc, strconv.FormatInt(change.Seq, 10), string(change.Op), change); err != nil {
					return
				}
			}
		}
	}
}

func endStream(ctx context.Context, w http.ResponseWriter, rc *http.ResponseController, cause error, logg *logger.Logger) {
	switch {
	case errors.Is(cause, live.ErrLagged):
		logg.Warn(ctx, "live.lagged")
		_ = writeEvent(w, rc, "", "lagged", map[string]string{"reason": cause.Error()})
	case errors.Is(cause, live.ErrRelayReset):
		logg.Warn(ctx, "live.reset")
		_ = writeEvent(w, rc, "", "reset", map[string]string{"reason": cause.Error()})
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, id, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

func liveFilter(r *http.Request) (live.Filter, error) {
	q := r.URL.Query()
	rng, err := reports.ParseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return live.Filter{}, err
	}
	return live.Filter{
		Field: q.Get("field"),
		Value: q.Get("value"),
		From:  rng.From,
		To:    rng.To,
	}, nil
}
