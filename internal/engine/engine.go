package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/connectivity"
	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/geo"
	"github.com/gyaneshwarpardhi/sherox/internal/outbox"
	"github.com/gyaneshwarpardhi/sherox/internal/transmit"
)

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Outbox       *outbox.Outbox
	Connectivity connectivity.Provider
	Locator      geo.Locator
	Transmitter  transmit.Transmitter
	Logger       *slog.Logger
	// Clock feeds the key generator; time.Now if nil.
	Clock func() time.Time
}

// Engine produces emergency events and drains the offline buffer.
type Engine struct {
	outbox  *outbox.Outbox
	conn    connectivity.Provider
	locator geo.Locator
	tx      atomic.Pointer[txSlot]
	keys    *event.KeyGen
	conf    config.EngineConf
	logger  *slog.Logger

	draining    atomic.Bool
	triggerPool *workerPool[Input, Outcome]
	drainPool   *workerPool[struct{}, Report]
}

// txSlot boxes the interface for atomic.Pointer.
type txSlot struct{ t transmit.Transmitter }

// New creates an Engine using conf and starts its worker pools.
func New(ctx context.Context, conf config.EngineConf, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		outbox:  deps.Outbox,
		conn:    deps.Connectivity,
		locator: deps.Locator,
		keys:    event.NewKeyGen(deps.Clock),
		conf:    conf,
		logger:  logger,
	}
	e.tx.Store(&txSlot{deps.Transmitter})

	workers, depth := conf.EventWorkers, conf.QueueDepth
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	e.triggerPool = newWorkerPool[Input, Outcome](ctx, workers, depth,
		func(ctx context.Context, in Input) (Outcome, error) {
			return e.Trigger(ctx, in), nil
		},
	)

	// One worker, one queued slot: a drain requested while another runs is
	// queued once and further requests coalesce into it.
	e.drainPool = newWorkerPool[struct{}, Report](ctx, 1, 1,
		func(ctx context.Context, _ struct{}) (Report, error) {
			return e.drainWhenFree(ctx)
		},
	)
	return e
}

// SwapTransmitter atomically replaces the delivery path (used on hot-reload).
func (e *Engine) SwapTransmitter(t transmit.Transmitter) {
	e.tx.Store(&txSlot{t})
}

// Transmitter returns the current delivery path.
func (e *Engine) Transmitter() transmit.Transmitter {
	return e.tx.Load().t
}

// Draining reports whether a drain is running.
func (e *Engine) Draining() bool { return e.draining.Load() }

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.triggerPool.QueueCap() == 0 {
		return 0
	}
	return float64(e.triggerPool.QueueLen()) / float64(e.triggerPool.QueueCap())
}

// Shutdown finishes queued triggers and drains, then stops the pools.
func (e *Engine) Shutdown() {
	e.triggerPool.Drain()
	e.drainPool.Drain()
}
