package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/sherox/internal/event"
	"github.com/gyaneshwarpardhi/sherox/internal/store"
)

func openSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "nested", "events.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return s
}

func implementations(t *testing.T) map[string]store.KV {
	return map[string]store.KV{
		"sqlite": openSQLite(t),
		"memory": store.NewMemory(),
	}
}

func sampleEvents(n int) []event.EmergencyEvent {
	base := time.Date(2026, 5, 4, 22, 15, 0, 0, time.UTC)
	tick := 0
	gen := event.NewKeyGen(func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) })
	out := make([]event.EmergencyEvent, n)
	for i := range out {
		out[i] = gen.New(event.SourceVoice, "", event.At(12.97, 77.59))
	}
	return out
}

func TestKV_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, kv := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ev := sampleEvents(1)[0]
			ev.PlateNumber = "DL3CAB0001"

			if err := kv.Put(ctx, ev.Key, ev); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, found, err := kv.Get(ctx, ev.Key)
			if err != nil || !found {
				t.Fatalf("Get: found=%v err=%v", found, err)
			}
			if got.PlateNumber != "DL3CAB0001" || !got.Location.Known() || *got.Location.Lat != 12.97 {
				t.Errorf("round trip mismatch: %+v", got)
			}

			if err := kv.Delete(ctx, ev.Key); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, found, _ := kv.Get(ctx, ev.Key); found {
				t.Errorf("record still present after Delete")
			}
			if err := kv.Delete(ctx, ev.Key); err != nil {
				t.Errorf("deleting an absent key should succeed: %v", err)
			}
		})
	}
}

func TestKV_GetManyAlignsMissing(t *testing.T) {
	ctx := context.Background()
	for name, kv := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			evs := sampleEvents(3)
			for _, ev := range []event.EmergencyEvent{evs[0], evs[2]} {
				if err := kv.Put(ctx, ev.Key, ev); err != nil {
					t.Fatal(err)
				}
			}
			got, err := kv.GetMany(ctx, []string{evs[2].Key, evs[1].Key, evs[0].Key})
			if err != nil {
				t.Fatalf("GetMany: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 entries, got %d", len(got))
			}
			if got[0] == nil || got[0].Key != evs[2].Key {
				t.Errorf("entry 0 = %v, want %s", got[0], evs[2].Key)
			}
			if got[1] != nil {
				t.Errorf("entry 1 should be nil for a missing key, got %+v", got[1])
			}
			if got[2] == nil || got[2].Key != evs[0].Key {
				t.Errorf("entry 2 = %v, want %s", got[2], evs[0].Key)
			}
		})
	}
}

func TestKV_DeleteManyAndKeys(t *testing.T) {
	ctx := context.Background()
	for name, kv := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			evs := sampleEvents(4)
			for i := len(evs) - 1; i >= 0; i-- {
				if err := kv.Put(ctx, evs[i].Key, evs[i]); err != nil {
					t.Fatal(err)
				}
			}
			other := evs[0]
			other.Key = "draft-" + other.Timestamp
			if err := kv.Put(ctx, other.Key, other); err != nil {
				t.Fatal(err)
			}

			keys, err := kv.Keys(ctx, event.KeyPrefix)
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if len(keys) != 4 {
				t.Fatalf("expected 4 prefixed keys, got %v", keys)
			}
			for i, k := range keys {
				if k != evs[i].Key {
					t.Errorf("keys[%d] = %s, want %s (ascending)", i, k, evs[i].Key)
				}
			}

			if err := kv.DeleteMany(ctx, []string{evs[0].Key, evs[3].Key}); err != nil {
				t.Fatalf("DeleteMany: %v", err)
			}
			keys, _ = kv.Keys(ctx, event.KeyPrefix)
			if len(keys) != 2 || keys[0] != evs[1].Key || keys[1] != evs[2].Key {
				t.Errorf("after DeleteMany keys = %v", keys)
			}
		})
	}
}

func TestKV_PutNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, kv := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ev := sampleEvents(1)[0]
			ev.PlateNumber = "FIRST"
			if err := kv.Put(ctx, ev.Key, ev); err != nil {
				t.Fatal(err)
			}
			dup := ev
			dup.PlateNumber = "SECOND"
			if err := kv.Put(ctx, dup.Key, dup); !errors.Is(err, store.ErrKeyExists) {
				t.Fatalf("duplicate Put err = %v, want ErrKeyExists", err)
			}
			got, _, _ := kv.Get(ctx, ev.Key)
			if got.PlateNumber != "FIRST" {
				t.Errorf("record overwritten: plate = %q", got.PlateNumber)
			}
		})
	}
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	s, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	ev := sampleEvents(1)[0]
	if err := s.Put(ctx, ev.Key, ev); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if err := reopened.InitSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if _, found, err := reopened.Get(ctx, ev.Key); err != nil || !found {
		t.Errorf("record lost across reopen: found=%v err=%v", found, err)
	}
}

func TestSQLite_ClosedStore(t *testing.T) {
	s := openSQLite(t)
	s.Close()
	err := s.Put(context.Background(), "emergency-x", event.EmergencyEvent{})
	if !errors.Is(err, store.ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}
