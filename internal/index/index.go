package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultSlot holds the JSON array of pending event keys.
const DefaultSlot = "emergency-keys"

// Index is the ordered list of pending event keys. A corrupted slot reads
// as an empty list: keys registered before the corruption are only found
// again by the store sweep.
type Index struct {
	slots  Slots
	slot   string
	logger *slog.Logger
	mu     sync.Mutex
}

// New returns an Index persisted in slot (DefaultSlot if empty).
func New(slots Slots, slot string, logger *slog.Logger) *Index {
	if slot == "" {
		slot = DefaultSlot
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{slots: slots, slot: slot, logger: logger}
}

// Register appends key. Already-registered keys are left in place.
func (x *Index) Register(key string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys := x.read()
	for _, k := range keys {
		if k == key {
			return nil
		}
	}
	return x.write(append(keys, key))
}

// Drain returns the full list in registration order. It never fails.
func (x *Index) Drain() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.read()
}

// Clear removes the slot entirely.
func (x *Index) Clear() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.slots.Remove(x.slot); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

// Remove drops keys from the list. An emptied list removes the slot.
func (x *Index) Remove(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	current := x.read()
	kept := current[:0:0]
	for _, k := range current {
		if _, ok := drop[k]; !ok {
			kept = append(kept, k)
		}
	}
	if len(kept) == len(current) {
		return nil
	}
	if len(kept) == 0 {
		if err := x.slots.Remove(x.slot); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		return nil
	}
	return x.write(kept)
}

func (x *Index) read() []string {
	raw, found, err := x.slots.Get(x.slot)
	if err != nil {
		x.logger.Warn("pending index unreadable, treating as empty", "slot", x.slot, "err", err)
		return []string{}
	}
	if !found || raw == "" {
		return []string{}
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		x.logger.Warn("pending index corrupted, treating as empty", "slot", x.slot, "err", err)
		return []string{}
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}

func (x *Index) write(keys []string) error {
	b, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := x.slots.Set(x.slot, string(b)); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
