// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package services

import (
	"context"
)

// IngestService supervises the NATS ingest bridge.
type IngestService struct {
	ingest ContextRunner
	name   string
}

// NewIngestService wraps the ingest bridge for supervision.
func NewIngestService(ingest ContextRunner) *IngestService {
	return &IngestService{ingest: ingest, name: "nats-ingest"}
}

// Serve implements suture.Service.
func (s *IngestService) Serve(ctx context.Context) error {
	return s.ingest.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervision logs.
func (s *IngestService) String() string {
	return s.name
}
