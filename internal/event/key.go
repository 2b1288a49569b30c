package event

import (
	"sync"
	"time"
)

// KeyGen hands out strictly increasing event timestamps. Two triggers
// landing in the same clock tick (or a clock stepping backwards) still
// get distinct, ordered keys.
type KeyGen struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewKeyGen returns a generator reading time from now (time.Now if nil).
func NewKeyGen(now func() time.Time) *KeyGen {
	if now == nil {
		now = time.Now
	}
	return &KeyGen{now: now}
}

// Next returns a fresh key and its timestamp string.
func (g *KeyGen) Next() (key, timestamp string) {
	g.mu.Lock()
	t := g.now().UTC().Round(0)
	if !t.After(g.last) {
		t = g.last.Add(time.Nanosecond)
	}
	g.last = t
	g.mu.Unlock()

	timestamp = t.Format(TimestampLayout)
	return KeyPrefix + timestamp, timestamp
}

// New builds an event with a fresh key. PlateNumber may be empty.
func (g *KeyGen) New(source Source, plateNumber string, loc Location) EmergencyEvent {
	key, ts := g.Next()
	return EmergencyEvent{
		Key:         key,
		Timestamp:   ts,
		Source:      source,
		PlateNumber: plateNumber,
		Location:    loc,
	}
}
