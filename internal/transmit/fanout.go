package transmit

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Fanout sends to every target concurrently and succeeds if at least one
// confirming target delivers. Side channels are always sent to but only
// decide the result when the route has nothing else.
type Fanout struct {
	targets []Transmitter
}

func NewFanout(targets ...Transmitter) *Fanout {
	return &Fanout{targets: targets}
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.targets))
	for i, t := range f.targets {
		names[i] = t.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *Fanout) Send(ctx context.Context, ev event.EmergencyEvent) error {
	if len(f.targets) == 0 {
		return &DeliveryError{Transmitter: f.Name(), Permanent: true, Err: errors.New("no targets")}
	}
	errs := make([]error, len(f.targets))
	var wg sync.WaitGroup
	for i, t := range f.targets {
		wg.Add(1)
		go func(i int, t Transmitter) {
			defer wg.Done()
			errs[i] = t.Send(ctx, ev)
		}(i, t)
	}
	wg.Wait()

	confirming := 0
	for _, t := range f.targets {
		if Confirms(t) {
			confirming++
		}
	}
	var failed []error
	for i, t := range f.targets {
		if confirming > 0 && !Confirms(t) {
			continue
		}
		if errs[i] == nil {
			return nil
		}
		failed = append(failed, errs[i])
	}
	return errors.Join(failed...)
}

// SideChannel is true only when every target is a side channel.
func (f *Fanout) SideChannel() bool {
	for _, t := range f.targets {
		if Confirms(t) {
			return false
		}
	}
	return true
}
