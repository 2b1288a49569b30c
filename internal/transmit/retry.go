package transmit

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Retrying resends through next with exponential backoff. Permanent
// delivery errors stop the loop immediately.
type Retrying struct {
	next        Transmitter
	maxAttempts int
	initial     time.Duration
	max         time.Duration
	logger      *slog.Logger
}

func NewRetrying(next Transmitter, cfg config.RetryConf, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		next:        next,
		maxAttempts: attempts,
		initial:     cfg.InitialBackoff,
		max:         cfg.MaxBackoff,
		logger:      logger,
	}
}

func (r *Retrying) Name() string { return r.next.Name() }

func (r *Retrying) SideChannel() bool { return !Confirms(r.next) }

func (r *Retrying) Send(ctx context.Context, ev event.EmergencyEvent) error {
	exp := backoff.NewExponentialBackOff()
	if r.initial > 0 {
		exp.InitialInterval = r.initial
	}
	if r.max > 0 {
		exp.MaxInterval = r.max
	}
	exp.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(r.maxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := r.next.Send(ctx, ev)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("send failed, retrying",
			"transmitter", r.next.Name(), "key", ev.Key, "attempt", attempt, "wait", wait, "err", err)
	}
	return backoff.RetryNotify(op, b, notify)
}
