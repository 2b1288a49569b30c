package connectivity

import (
	"sync"
)

// Provider reports network state and notifies on transitions.
type Provider interface {
	Online() bool
	// Subscribe registers fn for state changes. fn is called only when the
	// state actually flips and must not block for long.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Manual is a Provider whose state is set explicitly, e.g. by the edge
// device reporting its own network.
type Manual struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

var _ Provider = (*Manual)(nil)

func NewManual(initial bool) *Manual {
	return &Manual{online: initial, subs: make(map[int]func(bool))}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state. Subscribers run synchronously, outside the lock,
// only when the value changes. It reports whether a transition happened.
func (m *Manual) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
	return true
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
