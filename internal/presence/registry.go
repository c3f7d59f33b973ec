// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Package presence tracks which logical users are currently connected and
// their last activity, independent of room membership.
//
// The registry is process-local and memory-only: a restart loses all
// presence state and no offline events are sent for it. Clients are
// expected to re-announce presence (user_online) when they reconnect.
package presence

import (
	"sync"
	"time"

	"github.com/startlabx/relay/internal/metrics"
)

// DefaultStatus is the status applied when a user announces presence
// without supplying one.
const DefaultStatus = "online"

// Entry is one user's presence record.
type Entry struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"-"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"lastSeen"`
}

// Registry maps userID to its single presence entry. At most one entry
// exists per userID: a second announcement for the same user overwrites the
// first (last-writer-wins, no multi-device merge).
//
// All operations are total; there are no error conditions.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewRegistry creates an empty registry using wall-clock time.
func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock creates a registry with an injectable clock so
// staleness behavior is testable without sleeping.
func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		now:     now,
	}
}

// RecordOnline inserts or overwrites the entry for userID. An empty status
// defaults to DefaultStatus. Returns the stored entry.
func (r *Registry) RecordOnline(userID, connectionID, status string) Entry {
	if status == "" {
		status = DefaultStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := Entry{
		UserID:       userID,
		ConnectionID: connectionID,
		Status:       status,
		LastSeen:     r.now(),
	}
	r.entries[userID] = entry
	metrics.PresenceOnline.Set(float64(len(r.entries)))
	return entry
}

// UpdateStatus updates the status and lastSeen of an existing entry.
// Returns the updated entry and true, or a zero entry and false when the
// user is not registered (callers broadcast nothing in that case).
func (r *Registry) UpdateStatus(userID, status string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		return Entry{}, false
	}

	entry.Status = status
	entry.LastSeen = r.now()
	r.entries[userID] = entry
	return entry, true
}

// RemoveByConnectionID deletes the entry whose connection matches and
// returns its userID so the caller can announce the user offline. Returns
// false when no entry matches (already removed, or the connection never
// announced presence).
func (r *Registry) RemoveByConnectionID(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, entry := range r.entries {
		if entry.ConnectionID == connectionID {
			delete(r.entries, userID)
			metrics.PresenceOnline.Set(float64(len(r.entries)))
			return userID, true
		}
	}
	return "", false
}

// TouchByConnectionID refreshes LastSeen for the entry whose connection
// matches, keeping heartbeating users out of the idle sweep. Returns false
// when the connection never announced presence.
func (r *Registry) TouchByConnectionID(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, entry := range r.entries {
		if entry.ConnectionID == connectionID {
			entry.LastSeen = r.now()
			r.entries[userID] = entry
			return true
		}
	}
	return false
}

// SweepStale evicts every entry idle longer than maxIdle and returns the
// evicted userIDs for offline broadcast. O(n) over the registry, which is
// expected to stay small.
func (r *Registry) SweepStale(maxIdle time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var evicted []string
	for userID, entry := range r.entries {
		if entry.LastSeen.Before(cutoff) {
			delete(r.entries, userID)
			evicted = append(evicted, userID)
		}
	}

	if len(evicted) > 0 {
		metrics.PresenceOnline.Set(float64(len(r.entries)))
		metrics.PresenceEvictions.Add(float64(len(evicted)))
	}
	return evicted
}

// Get returns the entry for userID, if present.
func (r *Registry) Get(userID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	return entry, ok
}

// Len returns the number of tracked users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a copy of all entries for introspection endpoints.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	return out
}
