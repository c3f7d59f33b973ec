// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package presence

import (
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/startlabx/relay/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// fakeClock provides a manually advanced clock for staleness tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_RecordOnline(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistryWithClock(clock.Now)

	entry := r.RecordOnline("u1", "c1", "")

	if entry.Status != DefaultStatus {
		t.Errorf("status = %q, want %q", entry.Status, DefaultStatus)
	}
	if entry.LastSeen != clock.Now() {
		t.Errorf("lastSeen = %v, want %v", entry.LastSeen, clock.Now())
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_RecordOnline_CustomStatus(t *testing.T) {
	r := NewRegistry()

	entry := r.RecordOnline("u1", "c1", "busy")

	if entry.Status != "busy" {
		t.Errorf("status = %q, want busy", entry.Status)
	}
}

// Two successive announcements for the same userId leave exactly one entry
// reflecting the second call (last-writer-wins).
func TestRegistry_PresenceOverwrite(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistryWithClock(clock.Now)

	r.RecordOnline("u1", "c1", "online")
	clock.Advance(10 * time.Second)
	second := r.RecordOnline("u1", "c2", "busy")

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after overwrite", r.Len())
	}

	got, ok := r.Get("u1")
	if !ok {
		t.Fatal("expected entry for u1")
	}
	if got.ConnectionID != "c2" {
		t.Errorf("connectionID = %q, want c2", got.ConnectionID)
	}
	if got.Status != "busy" {
		t.Errorf("status = %q, want busy", got.Status)
	}
	if got.LastSeen != second.LastSeen {
		t.Errorf("lastSeen = %v, want %v", got.LastSeen, second.LastSeen)
	}
}

func TestRegistry_UpdateStatus(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistryWithClock(clock.Now)
	r.RecordOnline("u1", "c1", "online")

	clock.Advance(time.Minute)
	entry, ok := r.UpdateStatus("u1", "away")

	if !ok {
		t.Fatal("UpdateStatus should succeed for known user")
	}
	if entry.Status != "away" {
		t.Errorf("status = %q, want away", entry.Status)
	}
	if entry.LastSeen != clock.Now() {
		t.Errorf("lastSeen not refreshed: %v != %v", entry.LastSeen, clock.Now())
	}
}

func TestRegistry_UpdateStatus_UnknownUser(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.UpdateStatus("ghost", "away"); ok {
		t.Error("UpdateStatus should be a no-op for unknown user")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_RemoveByConnectionID(t *testing.T) {
	r := NewRegistry()
	r.RecordOnline("u1", "c1", "")
	r.RecordOnline("u2", "c2", "")

	userID, ok := r.RemoveByConnectionID("c1")
	if !ok || userID != "u1" {
		t.Errorf("RemoveByConnectionID = (%q, %v), want (u1, true)", userID, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	// Second removal of the same connection finds nothing.
	if _, ok := r.RemoveByConnectionID("c1"); ok {
		t.Error("duplicate removal should return false")
	}
}

func TestRegistry_RemoveByConnectionID_StaleConnection(t *testing.T) {
	r := NewRegistry()
	r.RecordOnline("u1", "c1", "")
	// The same user re-announces from a new connection; the old connection's
	// disconnect must not remove the fresh entry.
	r.RecordOnline("u1", "c2", "")

	if _, ok := r.RemoveByConnectionID("c1"); ok {
		t.Error("old connection should no longer match any entry")
	}
	if _, ok := r.Get("u1"); !ok {
		t.Error("u1 should still be online via c2")
	}
}

func TestRegistry_TouchByConnectionID(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistryWithClock(clock.Now)

	r.RecordOnline("u1", "c1", "")
	clock.Advance(4 * time.Minute)

	if !r.TouchByConnectionID("c1") {
		t.Fatal("TouchByConnectionID should match c1")
	}
	clock.Advance(2 * time.Minute)

	// 6 minutes since announce but only 2 since the heartbeat.
	if evicted := r.SweepStale(5 * time.Minute); len(evicted) != 0 {
		t.Errorf("evicted %v, want none after heartbeat", evicted)
	}
	if r.TouchByConnectionID("c9") {
		t.Error("unknown connection should not match")
	}
}

func TestRegistry_SweepStale(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistryWithClock(clock.Now)

	r.RecordOnline("u1", "c1", "")
	clock.Advance(4 * time.Minute)
	r.RecordOnline("u2", "c2", "")
	clock.Advance(2 * time.Minute) // u1 idle 6m, u2 idle 2m

	evicted := r.SweepStale(5 * time.Minute)

	if len(evicted) != 1 || evicted[0] != "u1" {
		t.Errorf("evicted = %v, want [u1]", evicted)
	}
	if _, ok := r.Get("u1"); ok {
		t.Error("u1 should be evicted")
	}
	if _, ok := r.Get("u2"); !ok {
		t.Error("u2 should survive the sweep")
	}

	// A second sweep finds nothing new: eviction happens exactly once.
	if again := r.SweepStale(5 * time.Minute); len(again) != 0 {
		t.Errorf("second sweep evicted %v, want none", again)
	}
}

func TestRegistry_SweepStale_Multiple(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistryWithClock(clock.Now)

	r.RecordOnline("u1", "c1", "")
	r.RecordOnline("u2", "c2", "")
	r.RecordOnline("u3", "c3", "")
	clock.Advance(10 * time.Minute)

	evicted := r.SweepStale(5 * time.Minute)
	sort.Strings(evicted)

	want := []string{"u1", "u2", "u3"}
	if len(evicted) != len(want) {
		t.Fatalf("evicted %d entries, want %d", len(evicted), len(want))
	}
	for i := range want {
		if evicted[i] != want[i] {
			t.Errorf("evicted[%d] = %q, want %q", i, evicted[i], want[i])
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	r.RecordOnline("u1", "c1", "online")
	r.RecordOnline("u2", "c2", "busy")

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snap))
	}

	// Mutating the snapshot must not affect the registry.
	snap[0].Status = "mutated"
	for _, userID := range []string{"u1", "u2"} {
		if entry, _ := r.Get(userID); entry.Status == "mutated" {
			t.Error("snapshot mutation leaked into registry")
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			r.RecordOnline("user-"+id, "conn-"+id, "")
		}(i)
		go func() {
			defer wg.Done()
			r.Snapshot()
			r.Len()
		}()
		go func() {
			defer wg.Done()
			r.SweepStale(time.Hour)
		}()
	}
	wg.Wait()

	if r.Len() != 10 {
		t.Errorf("Len() = %d, want 10", r.Len())
	}
}
