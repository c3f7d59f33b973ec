// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Package api provides the HTTP surface of the relay: the WebSocket
// endpoint, health and introspection endpoints, Prometheus metrics, and the
// fallthrough delegate to the upstream web application.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/startlabx/relay/internal/config"
	"github.com/startlabx/relay/internal/logging"
	"github.com/startlabx/relay/internal/relay"
)

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	hub      *relay.Hub
	cfg      *config.Config
	upgrader websocket.Upgrader
	limiter  *rate.Limiter
}

// NewHandler creates the endpoint handler. The upgrader accepts any origin;
// browser clients connect from arbitrary deployment hosts and the protocol
// carries no credentials.
func NewHandler(hub *relay.Hub, cfg *config.Config) *Handler {
	return &Handler{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: cfg.Relay.HandshakeTimeout,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Relay.UpgradesPerSecond), cfg.Relay.UpgradeBurst),
	}
}

// WebSocket upgrades the connection and hands it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := relay.NewClient(h.hub, conn, h.cfg.Relay.SendBuffer, h.cfg.Relay.MaxMessageBytes)
	h.hub.Register <- client
	client.Start()
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthReady reports readiness to accept connections.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ready",
		"connections": h.hub.ClientCount(),
	})
}

// presenceEntry is the wire shape of one online user.
type presenceEntry struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

// Presence lists the users currently tracked as online.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	snapshot := h.hub.Registry().Snapshot()

	users := make([]presenceEntry, 0, len(snapshot))
	for _, e := range snapshot {
		users = append(users, presenceEntry{
			UserID:   e.UserID,
			Status:   e.Status,
			LastSeen: e.LastSeen.UTC(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(users),
		"onlineUsers": users,
	})
}

// Stats exposes hub counters for dashboards and debugging.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response")
	}
}
