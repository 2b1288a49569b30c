package store

import (
	"context"
	"errors"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
)

// ErrNotInitialized is returned by a store used before Open or after Close.
var ErrNotInitialized = errors.New("store not initialized")

// ErrKeyExists is returned by Put when the key already holds a record.
var ErrKeyExists = errors.New("key already exists")

// KV is the durable key-value store holding buffered emergency events.
// Every operation may fail (disk full, locked database); callers treat a
// failed Put as a lost event.
type KV interface {
	// Put never overwrites: an existing key yields ErrKeyExists.
	Put(ctx context.Context, key string, ev event.EmergencyEvent) error
	// Get returns found=false for an absent key.
	Get(ctx context.Context, key string) (ev event.EmergencyEvent, found bool, err error)
	Delete(ctx context.Context, key string) error
	// GetMany returns one entry per key, nil where the key is absent.
	GetMany(ctx context.Context, keys []string) ([]*event.EmergencyEvent, error)
	DeleteMany(ctx context.Context, keys []string) error
	// Keys lists stored keys with the given prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
