// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package presence

import (
	"context"
	"time"

	"github.com/startlabx/relay/internal/logging"
)

// Reaper periodically sweeps the registry and evicts entries whose last
// activity exceeds the idle threshold, covering ungraceful network drops
// where no disconnect event ever fires. A plain polling sweep is enough at
// the registry sizes the relay sees; per-entry timers would buy nothing.
type Reaper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
	onEvict   func(userID string)
}

// NewReaper creates a reaper that calls onEvict once per evicted user so
// the caller can broadcast the offline event.
func NewReaper(registry *Registry, interval, threshold time.Duration, onEvict func(userID string)) *Reaper {
	return &Reaper{
		registry:  registry,
		interval:  interval,
		threshold: threshold,
		onEvict:   onEvict,
	}
}

// RunWithContext runs sweeps on a fixed interval until the context is
// canceled. Designed for suture supervision; returns ctx.Err() on shutdown.
func (r *Reaper) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logging.Info().
		Str("component", "idle-reaper").
		Dur("interval", r.interval).
		Dur("threshold", r.threshold).
		Msg("idle reaper started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "idle-reaper").Msg("idle reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs one eviction pass. Exposed separately from the run loop so
// tests can drive it without waiting on the ticker.
func (r *Reaper) Sweep() {
	evicted := r.registry.SweepStale(r.threshold)
	for _, userID := range evicted {
		logging.Info().Str("user_id", userID).Msg("presence entry evicted as stale")
		if r.onEvict != nil {
			r.onEvict(userID)
		}
	}
}
