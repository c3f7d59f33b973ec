// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package relay

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/startlabx/relay/internal/logging"
	"github.com/startlabx/relay/internal/metrics"
)

// DefaultSubjectPrefix is where producers publish envelopes: one message to
// <prefix>.<event>. The subject suffix is informational, routing uses the
// envelope's event field.
const DefaultSubjectPrefix = "relay.events"

// MessageSource abstracts the NATS subscription so the bridge can be tested
// without a broker.
type MessageSource interface {
	// Subscribe delivers raw message payloads for the subject until ctx ends.
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)
	// Close releases the underlying connection.
	Close() error
}

// natsSource adapts a nats.Conn to MessageSource using a buffered channel
// subscription.
type natsSource struct {
	conn *nats.Conn
}

// NewNATSSource wraps an established NATS connection.
func NewNATSSource(conn *nats.Conn) MessageSource {
	return &natsSource{conn: conn}
}

func (s *natsSource) Subscribe(ctx context.Context, subject string) (<-chan []byte, error) {
	out := make(chan []byte, 256)

	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case out <- msg.Data:
		default:
			metrics.EventsDropped.WithLabelValues("backlog").Inc()
			logging.Warn().Str("subject", msg.Subject).Msg("ingest backlog full, dropping message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			logging.Warn().Err(err).Msg("failed to unsubscribe ingest")
		}
		close(out)
	}()

	return out, nil
}

func (s *natsSource) Close() error {
	s.conn.Close()
	return nil
}

// Ingest bridges server-published events into the hub. Events arrive as the
// same JSON envelopes clients send and flow through the same routing with
// no source connection.
type Ingest struct {
	hub     *Hub
	source  MessageSource
	subject string
}

// NewIngest creates a bridge from the message source to the hub. An empty
// subjectPrefix means DefaultSubjectPrefix.
func NewIngest(hub *Hub, source MessageSource, subjectPrefix string) *Ingest {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &Ingest{hub: hub, source: source, subject: subjectPrefix + ".>"}
}

// RunWithContext subscribes and pumps messages into the hub until the
// context is canceled. Designed for suture supervision.
func (i *Ingest) RunWithContext(ctx context.Context) error {
	messages, err := i.source.Subscribe(ctx, i.subject)
	if err != nil {
		return err
	}

	logging.Info().Str("subject", i.subject).Msg("ingest bridge started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("ingest bridge stopped")
			return ctx.Err()
		case data, ok := <-messages:
			if !ok {
				logging.Info().Msg("ingest source closed")
				return ctx.Err()
			}
			i.handleMessage(data)
		}
	}
}

// handleMessage decodes one published envelope and hands it to the hub.
// Undecodable payloads are dropped, same as undecodable client frames.
func (i *Ingest) handleMessage(data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		metrics.IngestMessages.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Msg("undecodable ingest message, dropping")
		return
	}

	metrics.IngestMessages.WithLabelValues("relayed").Inc()
	i.hub.Ingest(env)
}
