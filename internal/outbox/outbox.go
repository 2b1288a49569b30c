// Package outbox pairs the durable record store with the pending key
// index. Records are always written before their key is indexed, so a key
// in the index without a record is a stale entry and a record without an
// index key is an orphan recovered by the sweep.
package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/index"
	"github.com/gyaneshwarpardhi/sherox/internal/store"
)

// Outbox is the buffered-event store used by the producer and the drain.
type Outbox struct {
	kv     store.KV
	index  *index.Index
	logger *slog.Logger
}

// Record is a pending key along with its stored event, if any.
type Record struct {
	Key   string                `json:"key"`
	Event *event.EmergencyEvent `json:"event"`
}

func New(kv store.KV, idx *index.Index, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{kv: kv, index: idx, logger: logger}
}

// Buffer persists ev for later delivery. An error means the event was not
// stored and is lost for offline recovery.
func (o *Outbox) Buffer(ctx context.Context, ev event.EmergencyEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("buffer: %w", err)
	}
	if err := o.kv.Put(ctx, ev.Key, ev); err != nil {
		return fmt.Errorf("buffer %s: %w", ev.Key, err)
	}
	if err := o.index.Register(ev.Key); err != nil {
		// The record is on disk; the sweep in Pending picks it up.
		o.logger.Error("index write failed, event kept as orphan", "key", ev.Key, "err", err)
	}
	return nil
}

// Pending returns the keys awaiting delivery: index order first, then
// orphaned records in key order.
func (o *Outbox) Pending(ctx context.Context) []string {
	keys := o.index.Drain()

	stored, err := o.kv.Keys(ctx, event.KeyPrefix)
	if err != nil {
		o.logger.Warn("orphan sweep failed, using index only", "err", err)
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	orphans := 0
	for _, k := range stored {
		if _, ok := seen[k]; ok {
			continue
		}
		keys = append(keys, k)
		orphans++
	}
	if orphans > 0 {
		o.logger.Info("recovered orphaned events", "count", orphans)
	}
	return keys
}

// Load returns the stored event for key. found is false for a stale key.
func (o *Outbox) Load(ctx context.Context, key string) (event.EmergencyEvent, bool, error) {
	return o.kv.Get(ctx, key)
}

// Delete removes the stored record for key.
func (o *Outbox) Delete(ctx context.Context, key string) error {
	return o.kv.Delete(ctx, key)
}

// Deindex drops keys from the pending index.
func (o *Outbox) Deindex(keys ...string) error {
	return o.index.Remove(keys...)
}

// Records lists pending keys with their records. Stale keys carry a nil
// event.
func (o *Outbox) Records(ctx context.Context) ([]Record, error) {
	keys := o.Pending(ctx)
	evs, err := o.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load pending records: %w", err)
	}
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = Record{Key: k, Event: evs[i]}
	}
	return out, nil
}
