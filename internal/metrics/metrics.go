// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Package metrics exposes Prometheus instrumentation for the relay:
// WebSocket connection and room counts, per-event relay throughput,
// presence registry size and evictions, upstream delegate health, and
// HTTP request latency.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocket transport metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Current number of rooms with at least one member",
		},
	)

	// Event relay metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Total number of inbound events by event name",
		},
		[]string{"event"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_delivered_total",
			Help: "Total number of outbound event deliveries by event name",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total number of events dropped before relay",
		},
		[]string{"reason"}, // "malformed", "unknown_event", "slow_client", "backlog", "stale_connection"
	)

	// Presence registry metrics
	PresenceOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_presence_online_users",
			Help: "Current number of users tracked as online",
		},
	)

	PresenceEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_presence_evictions_total",
			Help: "Total number of presence entries evicted by the idle reaper",
		},
	)

	// Upstream delegate metrics
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_requests_total",
			Help: "Total number of requests forwarded to the upstream application",
		},
		[]string{"outcome"}, // "success", "failure", "rejected"
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// NATS ingest metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_ingest_messages_total",
			Help: "Total number of messages consumed from the NATS ingest bridge",
		},
		[]string{"outcome"}, // "relayed", "malformed"
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
