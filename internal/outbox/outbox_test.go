package outbox_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/index"
	"github.com/gyaneshwarpardhi/sherox/internal/outbox"
	"github.com/gyaneshwarpardhi/sherox/internal/store"
)

type failingSlots struct{ index.MemorySlots }

func (*failingSlots) Set(string, string) error { return errors.New("quota exceeded") }

type failingKV struct{ *store.Memory }

func (failingKV) Put(context.Context, string, event.EmergencyEvent) error {
	return errors.New("disk full")
}

type noSweepKV struct{ *store.Memory }

func (noSweepKV) Keys(context.Context, string) ([]string, error) {
	return nil, errors.New("scan unsupported")
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newGen() *event.KeyGen {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	return event.NewKeyGen(func() time.Time { n++; return base.Add(time.Duration(n) * time.Millisecond) })
}

func TestBuffer_WritesRecordThenIndex(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	slots := index.NewMemorySlots()
	ob := outbox.New(kv, index.New(slots, "", quiet()), quiet())

	ev := newGen().New(event.SourceManual, "KA01AB1234", event.UnknownLocation())
	if err := ob.Buffer(ctx, ev); err != nil {
		t.Fatalf("Buffer: %v", err)
	}
	if kv.Len() != 1 {
		t.Errorf("expected exactly one record, got %d", kv.Len())
	}
	if v, _, _ := slots.Get(index.DefaultSlot); v != `["`+ev.Key+`"]` {
		t.Errorf("index slot = %s", v)
	}
}

func TestBuffer_RejectsInvalidEvent(t *testing.T) {
	ob := outbox.New(store.NewMemory(), index.New(index.NewMemorySlots(), "", quiet()), quiet())
	if err := ob.Buffer(context.Background(), event.EmergencyEvent{Key: "nope"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestBuffer_PutFailureIsLoss(t *testing.T) {
	slots := index.NewMemorySlots()
	ob := outbox.New(failingKV{store.NewMemory()}, index.New(slots, "", quiet()), quiet())
	ev := newGen().New(event.SourceVoice, "", event.UnknownLocation())
	if err := ob.Buffer(context.Background(), ev); err == nil {
		t.Fatal("expected error when the record cannot be written")
	}
	if _, found, _ := slots.Get(index.DefaultSlot); found {
		t.Error("key must not be indexed when the record write failed")
	}
}

func TestBuffer_IndexFailureLeavesOrphan(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	var logs bytes.Buffer
	errorsOnly := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelError}))
	ob := outbox.New(kv, index.New(&failingSlots{}, "", quiet()), errorsOnly)
	ev := newGen().New(event.SourceOCR, "MH12XY9999", event.UnknownLocation())
	if err := ob.Buffer(ctx, ev); err != nil {
		t.Fatalf("index failure should be tolerated: %v", err)
	}
	if !strings.Contains(logs.String(), "index write failed") || !strings.Contains(logs.String(), ev.Key) {
		t.Errorf("index failure not logged at error level: %q", logs.String())
	}
	pending := ob.Pending(ctx)
	if len(pending) != 1 || pending[0] != ev.Key {
		t.Errorf("Pending = %v, want orphan %s", pending, ev.Key)
	}
}

func TestPending_IndexOrderThenOrphans(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	idx := index.New(index.NewMemorySlots(), "", quiet())
	ob := outbox.New(kv, idx, quiet())
	gen := newGen()
	evs := []event.EmergencyEvent{
		gen.New(event.SourceManual, "", event.UnknownLocation()),
		gen.New(event.SourceManual, "", event.UnknownLocation()),
		gen.New(event.SourceManual, "", event.UnknownLocation()),
		gen.New(event.SourceManual, "", event.UnknownLocation()),
	}
	// evs[3] then evs[1] are indexed; evs[2] and evs[0] are orphans.
	for _, ev := range evs {
		kv.Put(ctx, ev.Key, ev)
	}
	idx.Register(evs[3].Key)
	idx.Register(evs[1].Key)

	got := ob.Pending(ctx)
	want := []string{evs[3].Key, evs[1].Key, evs[0].Key, evs[2].Key}
	if len(got) != len(want) {
		t.Fatalf("Pending = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Pending[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPending_SweepFailureFallsBackToIndex(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	idx := index.New(index.NewMemorySlots(), "", quiet())
	ob := outbox.New(noSweepKV{kv}, idx, quiet())
	idx.Register("emergency-a")
	if got := ob.Pending(ctx); len(got) != 1 || got[0] != "emergency-a" {
		t.Errorf("Pending = %v", got)
	}
}

func TestRecords_IncludesStaleKeys(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	idx := index.New(index.NewMemorySlots(), "", quiet())
	ob := outbox.New(kv, idx, quiet())
	ev := newGen().New(event.SourceVoice, "", event.At(1, 2))
	if err := ob.Buffer(ctx, ev); err != nil {
		t.Fatal(err)
	}
	idx.Register("emergency-stale")

	recs, err := ob.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Event == nil || recs[0].Event.Key != ev.Key {
		t.Errorf("first record = %+v", recs[0])
	}
	if recs[1].Key != "emergency-stale" || recs[1].Event != nil {
		t.Errorf("stale record = %+v", recs[1])
	}

	if err := ob.Delete(ctx, ev.Key); err != nil {
		t.Fatal(err)
	}
	if err := ob.Deindex(ev.Key, "emergency-stale"); err != nil {
		t.Fatal(err)
	}
	if got := ob.Pending(ctx); len(got) != 0 {
		t.Errorf("Pending after cleanup = %v", got)
	}
}
