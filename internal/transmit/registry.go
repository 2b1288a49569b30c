package transmit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/sherox/internal/config"
	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/metrics"
)

// Registry maps transmitter names to their implementations.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu           sync.RWMutex
	transmitters map[string]Transmitter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{transmitters: make(map[string]Transmitter)}
}

// FromConfig registers every enabled transmitter. pub may be nil when
// MQTT is disabled.
func FromConfig(cfg *config.Config, pub Publisher, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry()
	tc := cfg.Transmitters
	if tc.SOSHTTP.Enabled {
		r.Register(NewHTTPSOS(tc.SOSHTTP, cfg.UserEmail))
	}
	if tc.MQTT.Enabled {
		if pub == nil {
			return nil, fmt.Errorf("mqtt transmitter enabled without a connected client")
		}
		r.Register(NewMQTT(pub, tc.MQTT))
	}
	if tc.Log.Enabled {
		r.Register(NewLog(logger))
	}
	return r, nil
}

// Register adds a transmitter. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(t Transmitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transmitters[t.Name()]; exists {
		panic(fmt.Sprintf("transmit registry: duplicate name %q", t.Name()))
	}
	r.transmitters[t.Name()] = t
}

// Get returns the transmitter registered under name.
func (r *Registry) Get(name string) (Transmitter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transmitters[name]
	if !ok {
		return nil, fmt.Errorf("no transmitter registered as %q", name)
	}
	return t, nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.transmitters))
	for k := range r.transmitters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build assembles the routing table from cfg.Routes. Each registered
// transmitter is wrapped once with retries and metrics; routes naming
// several transmitters become a Fanout.
func (r *Registry) Build(cfg *config.Config, logger *slog.Logger) (*Router, error) {
	wrapped := make(map[string]Transmitter)
	resolve := func(names []string) (Transmitter, error) {
		targets := make([]Transmitter, 0, len(names))
		for _, n := range names {
			t, ok := wrapped[n]
			if !ok {
				base, err := r.Get(n)
				if err != nil {
					return nil, err
				}
				t = observed{NewRetrying(base, cfg.Retry, logger)}
				wrapped[n] = t
			}
			targets = append(targets, t)
		}
		switch len(targets) {
		case 0:
			return nil, fmt.Errorf("empty route")
		case 1:
			return targets[0], nil
		}
		return NewFanout(targets...), nil
	}

	fallback, err := resolve(cfg.Routes["default"])
	if err != nil {
		return nil, fmt.Errorf("routes.default: %w", err)
	}
	bySource := make(map[event.Source]Transmitter)
	for name, names := range cfg.Routes {
		if name == "default" {
			continue
		}
		src, err := event.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("routes.%s: %w", name, err)
		}
		t, err := resolve(names)
		if err != nil {
			return nil, fmt.Errorf("routes.%s: %w", name, err)
		}
		bySource[src] = t
	}
	return NewRouter(fallback, bySource), nil
}

// observed counts every completed send per transmitter.
type observed struct {
	Transmitter
}

func (o observed) SideChannel() bool { return !Confirms(o.Transmitter) }

func (o observed) Send(ctx context.Context, ev event.EmergencyEvent) error {
	err := o.Transmitter.Send(ctx, ev)
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.TransmissionsTotal.WithLabelValues(o.Name(), status).Inc()
	return err
}
