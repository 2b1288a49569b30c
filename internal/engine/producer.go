package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/geo"
	"github.com/gyaneshwarpardhi/sherox/internal/metrics"
	"github.com/gyaneshwarpardhi/sherox/internal/store"
)

// keyAttempts bounds how many fresh keys Trigger tries when the store
// already holds a record under the generated one.
const keyAttempts = 3

// Status is what happened to a triggered event.
type Status string

const (
	StatusSent     Status = "sent"
	StatusBuffered Status = "buffered"
	// StatusLost means neither delivery nor persistence succeeded.
	StatusLost Status = "lost"
)

// Input is a raw emergency trigger.
type Input struct {
	Source      event.Source `json:"source"`
	PlateNumber string       `json:"plateNumber"`
}

// Outcome reports a trigger's result. It is informational only.
type Outcome struct {
	Event       event.EmergencyEvent `json:"event"`
	Status      Status               `json:"status"`
	Transmitter string               `json:"transmitter,omitempty"`
	Error       string               `json:"error,omitempty"`
	DurationMs  int64                `json:"duration_ms"`
}

// Trigger creates an emergency event and either delivers it now (online)
// or buffers it for the next drain (offline, or online delivery failed).
// It never fails towards the caller.
func (e *Engine) Trigger(ctx context.Context, in Input) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("trigger panicked", "key", out.Event.Key, "panic", r)
			out.Status = StatusLost
			out.Error = fmt.Sprint(r)
		}
		out.DurationMs = time.Since(start).Milliseconds()
		metrics.TriggersTotal.WithLabelValues(string(out.Event.Source), string(out.Status)).Inc()
	}()

	src, err := event.ParseSource(string(in.Source))
	if err != nil {
		e.logger.Warn("unknown trigger source, recording as manual", "source", in.Source)
		src = event.SourceManual
	}

	key, ts := e.keys.Next()
	// Connectivity is sampled once, before the location wait.
	online := e.conn.Online()
	loc := geo.Resolve(ctx, e.locator, e.conf.GeolocationTimeout, e.logger)

	out.Event = event.EmergencyEvent{
		Key:         key,
		Timestamp:   ts,
		Source:      src,
		PlateNumber: in.PlateNumber,
		Location:    loc,
	}

	if online {
		tx := e.Transmitter()
		err := e.send(ctx, out.Event)
		if err == nil {
			e.logger.Info("emergency event sent", "key", key, "source", src)
			out.Status = StatusSent
			out.Transmitter = tx.Name()
			return out
		}
		e.logger.Warn("online send failed, buffering", "key", key, "err", err)
		out.Error = err.Error()
	}

	// The caller going away must not cost us the record.
	if err := e.buffer(context.WithoutCancel(ctx), &out.Event); err != nil {
		e.logger.Error("emergency event lost", "key", out.Event.Key, "source", src, "err", err)
		out.Status = StatusLost
		out.Error = err.Error()
		return out
	}
	metrics.EventsBuffered.Inc()
	metrics.PendingEvents.Inc()
	e.logger.Info("emergency event buffered", "key", out.Event.Key, "source", src, "online", online)
	out.Status = StatusBuffered
	return out
}

// buffer persists ev, moving it to a fresh key if its key is taken
// (records left by a run whose clock was ahead of ours).
func (e *Engine) buffer(ctx context.Context, ev *event.EmergencyEvent) error {
	for attempt := 1; ; attempt++ {
		err := e.outbox.Buffer(ctx, *ev)
		if err == nil || !errors.Is(err, store.ErrKeyExists) || attempt == keyAttempts {
			return err
		}
		e.logger.Warn("event key already stored, rekeying", "key", ev.Key)
		ev.Key, ev.Timestamp = e.keys.Next()
	}
}

// TriggerAsync enqueues a trigger for background processing. Returns false if the queue is full.
func (e *Engine) TriggerAsync(in Input) bool {
	defer func() { metrics.QueueUtilization.Set(e.QueueUtilization()) }()
	if !e.triggerPool.Submit(in) {
		metrics.TriggersDropped.Inc()
		return false
	}
	metrics.TriggersEnqueued.Inc()
	return true
}

// send delivers ev through the current transmitter within the send
// timeout. A panicking transmitter counts as a failed send.
func (e *Engine) send(ctx context.Context, ev event.EmergencyEvent) (err error) {
	tx := e.Transmitter()
	if tx == nil {
		return fmt.Errorf("no transmitter configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transmitter %s panicked: %v", tx.Name(), r)
		}
	}()
	if e.conf.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.conf.SendTimeout)
		defer cancel()
	}
	return tx.Send(ctx, ev)
}
