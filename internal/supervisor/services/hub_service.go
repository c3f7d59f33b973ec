// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Package services wraps the relay's long-running components as suture
// services. Each wrapper adapts a RunWithContext-style loop and gives it a
// stable name for supervision logs.
package services

import (
	"context"
)

// ContextRunner matches components whose main loop runs until the context
// is canceled. Satisfied by *relay.Hub, *relay.Ingest, and
// *presence.Reaper.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the relay hub's event loop.
type HubService struct {
	hub  ContextRunner
	name string
}

// NewHubService wraps the hub for supervision.
func NewHubService(hub ContextRunner) *HubService {
	return &HubService{hub: hub, name: "relay-hub"}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervision logs.
func (s *HubService) String() string {
	return s.name
}
