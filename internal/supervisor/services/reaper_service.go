// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package services

import (
	"context"
)

// ReaperService supervises the presence idle reaper.
type ReaperService struct {
	reaper ContextRunner
	name   string
}

// NewReaperService wraps the reaper for supervision.
func NewReaperService(reaper ContextRunner) *ReaperService {
	return &ReaperService{reaper: reaper, name: "presence-reaper"}
}

// Serve implements suture.Service.
func (s *ReaperService) Serve(ctx context.Context) error {
	return s.reaper.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervision logs.
func (s *ReaperService) String() string {
	return s.name
}
