package transmit

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Router picks a transmitter by event source, falling back to the default
// route.
type Router struct {
	bySource map[event.Source]Transmitter
	fallback Transmitter
}

func NewRouter(fallback Transmitter, bySource map[event.Source]Transmitter) *Router {
	if bySource == nil {
		bySource = map[event.Source]Transmitter{}
	}
	return &Router{bySource: bySource, fallback: fallback}
}

func (r *Router) Name() string { return "router" }

// Route returns the transmitter used for src.
func (r *Router) Route(src event.Source) Transmitter {
	if t, ok := r.bySource[src]; ok {
		return t
	}
	return r.fallback
}

func (r *Router) Send(ctx context.Context, ev event.EmergencyEvent) error {
	t := r.Route(ev.Source)
	if t == nil {
		return &DeliveryError{Transmitter: r.Name(), Permanent: true, Err: fmt.Errorf("no route for source %q", ev.Source)}
	}
	return t.Send(ctx, ev)
}
