// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/startlabx/relay/internal/config"
	"github.com/startlabx/relay/internal/relay"
)

// Router assembles the HTTP surface.
type Router struct {
	handler  *Handler
	delegate *Delegate
}

// NewRouter creates the router. delegate may be nil when no upstream is
// configured.
func NewRouter(hub *relay.Hub, cfg *config.Config, delegate *Delegate) *Router {
	return &Router{
		handler:  NewHandler(hub, cfg),
		delegate: delegate,
	}
}

// Setup configures all routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// CORS stays wide open: the relay fronts browser clients on arbitrary
	// deployment hosts and the protocol carries no credentials.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Use(PrometheusMetrics)
	r.Use(RequestLogger)

	r.Get("/ws", router.handler.WebSocket)
	r.Get("/healthz", router.handler.HealthLive)
	r.Get("/readyz", router.handler.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/presence", router.handler.Presence)
		r.Get("/stats", router.handler.Stats)
	})

	// Everything else belongs to the web application.
	if router.delegate != nil {
		r.NotFound(router.delegate.ServeHTTP)
	}

	return r
}
