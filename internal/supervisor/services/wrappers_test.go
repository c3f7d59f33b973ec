// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package services

import (
	"context"
	"testing"

	"github.com/thejerf/suture/v4"
)

// fakeRunner records the context it was run with and returns ctx.Err().
type fakeRunner struct {
	started chan struct{}
}

func (f *fakeRunner) RunWithContext(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestWrappers_Interfaces(t *testing.T) {
	var _ suture.Service = (*HubService)(nil)
	var _ suture.Service = (*ReaperService)(nil)
	var _ suture.Service = (*IngestService)(nil)
}

func TestWrappers_DelegateAndName(t *testing.T) {
	tests := []struct {
		name string
		make func(r ContextRunner) suture.Service
		want string
	}{
		{"hub", func(r ContextRunner) suture.Service { return NewHubService(r) }, "relay-hub"},
		{"reaper", func(r ContextRunner) suture.Service { return NewReaperService(r) }, "presence-reaper"},
		{"ingest", func(r ContextRunner) suture.Service { return NewIngestService(r) }, "nats-ingest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{started: make(chan struct{})}
			svc := tt.make(runner)

			if s, ok := svc.(interface{ String() string }); !ok || s.String() != tt.want {
				t.Errorf("String() = %v, want %q", svc, tt.want)
			}

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- svc.Serve(ctx) }()

			<-runner.started
			cancel()

			if err := <-done; err != context.Canceled {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		})
	}
}
