package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// Memory is a process-local KV. Records do not survive a restart.
type Memory struct {
	mu      sync.RWMutex
	records map[string]event.EmergencyEvent
}

var _ KV = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]event.EmergencyEvent)}
}

func (m *Memory) Put(_ context.Context, key string, ev event.EmergencyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("put event %s: %w", key, ErrKeyExists)
	}
	m.records[key] = ev
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (event.EmergencyEvent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.records[key]
	return ev, ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *Memory) GetMany(_ context.Context, keys []string) ([]*event.EmergencyEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*event.EmergencyEvent, len(keys))
	for i, k := range keys {
		if ev, ok := m.records[k]; ok {
			ev := ev
			out[i] = &ev
		}
	}
	return out, nil
}

func (m *Memory) DeleteMany(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.records, k)
	}
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
