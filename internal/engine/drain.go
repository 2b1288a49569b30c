package engine

import (
	"context"
	"errors"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/metrics"
)

// ErrDrainInFlight is returned when a drain is already running.
var ErrDrainInFlight = errors.New("drain already in progress")

// Report summarizes one drain run.
type Report struct {
	Pending   int      `json:"pending"`
	Sent      int      `json:"sent"`
	Stale     int      `json:"stale"`
	Failed    int      `json:"failed"`
	Remaining int      `json:"remaining"`
	SentKeys  []string `json:"sent_keys"`
	// DurationMs is wall time of the run.
	DurationMs int64 `json:"duration_ms"`
}

// Drain delivers every pending event, one at a time, in pending order.
// Only delivered events and stale index entries are removed; failures stay
// buffered for the next run.
func (e *Engine) Drain(ctx context.Context) (Report, error) {
	if !e.draining.CompareAndSwap(false, true) {
		metrics.DrainRuns.WithLabelValues("skipped").Inc()
		return Report{}, ErrDrainInFlight
	}
	defer e.draining.Store(false)

	start := time.Now()
	keys := e.outbox.Pending(ctx)
	rep := Report{Pending: len(keys), SentKeys: []string{}}
	done := make([]string, 0, len(keys))

	var runErr error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		ev, found, err := e.outbox.Load(ctx, key)
		if err != nil {
			e.logger.Error("load buffered event failed", "key", key, "err", err)
			rep.Failed++
			continue
		}
		if !found {
			e.logger.Warn("stale index entry, dropping", "key", key)
			rep.Stale++
			done = append(done, key)
			continue
		}
		if err := e.send(ctx, ev); err != nil {
			e.logger.Error("buffered event delivery failed", "key", key, "err", err)
			rep.Failed++
			continue
		}
		rep.Sent++
		rep.SentKeys = append(rep.SentKeys, key)
		if err := e.outbox.Delete(ctx, key); err != nil {
			// Left indexed, so the next drain sends it again.
			e.logger.Warn("delivered event not deleted", "key", key, "err", err)
			continue
		}
		done = append(done, key)
	}

	if err := e.outbox.Deindex(done...); err != nil {
		e.logger.Warn("deindex after drain failed", "err", err)
	}

	rep.Remaining = len(keys) - len(done)
	rep.DurationMs = time.Since(start).Milliseconds()

	metrics.DrainItems.WithLabelValues("sent").Add(float64(rep.Sent))
	metrics.DrainItems.WithLabelValues("stale").Add(float64(rep.Stale))
	metrics.DrainItems.WithLabelValues("failed").Add(float64(rep.Failed))
	metrics.DrainDuration.Observe(float64(rep.DurationMs))
	metrics.PendingEvents.Set(float64(rep.Remaining))
	result := "completed"
	if rep.Remaining > 0 {
		result = "partial"
	}
	metrics.DrainRuns.WithLabelValues(result).Inc()

	if rep.Pending > 0 {
		e.logger.Info("drain finished",
			"pending", rep.Pending, "sent", rep.Sent, "stale", rep.Stale,
			"failed", rep.Failed, "duration_ms", rep.DurationMs)
	}
	return rep, runErr
}

// RequestDrain schedules a background drain. It returns false when one is
// already queued.
func (e *Engine) RequestDrain() bool {
	return e.drainPool.Submit(struct{}{})
}

// drainWhenFree waits out a concurrent drain (e.g. one started over the
// API) so a requested run is never silently skipped.
func (e *Engine) drainWhenFree(ctx context.Context) (Report, error) {
	for {
		rep, err := e.Drain(ctx)
		if !errors.Is(err, ErrDrainInFlight) {
			return rep, err
		}
		select {
		case <-ctx.Done():
			return Report{}, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Watch requests a drain on every offline to online transition, and once
// at start if already online. It blocks until ctx is done.
func (e *Engine) Watch(ctx context.Context) {
	unsubscribe := e.conn.Subscribe(func(online bool) {
		if online {
			e.logger.Info("connectivity restored, draining buffer")
			e.RequestDrain()
		}
	})
	defer unsubscribe()

	if e.conn.Online() {
		e.RequestDrain()
	}
	<-ctx.Done()
}
