// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Command relay runs the StartLabX realtime server: the WebSocket hub, the
// presence registry with its idle reaper, the optional NATS ingest bridge,
// and the HTTP surface that also delegates unrecognized requests to the
// upstream web application.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/startlabx/relay/internal/api"
	"github.com/startlabx/relay/internal/broker"
	"github.com/startlabx/relay/internal/config"
	"github.com/startlabx/relay/internal/logging"
	"github.com/startlabx/relay/internal/presence"
	"github.com/startlabx/relay/internal/relay"
	"github.com/startlabx/relay/internal/supervisor"
	"github.com/startlabx/relay/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Str("upstream", cfg.Upstream.URL).
		Msg("Starting relay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := presence.NewRegistry()
	hub := relay.NewHub(registry)
	reaper := presence.NewReaper(registry, cfg.Presence.SweepInterval, cfg.Presence.IdleThreshold, hub.AnnounceOffline)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(services.NewHubService(hub))
	tree.AddMessagingService(services.NewReaperService(reaper))

	if cfg.NATS.Enabled {
		natsURL := cfg.NATS.URL
		if cfg.NATS.Embedded {
			embedded, err := broker.NewEmbeddedServer()
			if err != nil {
				logging.Fatal().Err(err).Msg("Failed to start embedded NATS server")
			}
			defer func() {
				if err := embedded.Shutdown(context.Background()); err != nil {
					logging.Warn().Err(err).Msg("Embedded NATS shutdown error")
				}
			}()
			natsURL = embedded.ClientURL()
			logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
		}

		conn, err := nats.Connect(natsURL,
			nats.Name("startlabx-relay"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			logging.Fatal().Err(err).Str("url", natsURL).Msg("Failed to connect to NATS")
		}
		defer conn.Close()

		ingest := relay.NewIngest(hub, relay.NewNATSSource(conn), cfg.NATS.SubjectPrefix)
		tree.AddMessagingService(services.NewIngestService(ingest))
	}

	delegate, err := api.NewDelegate(cfg.Upstream)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure upstream delegate")
	}

	router := api.NewRouter(hub, cfg, delegate)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Relay stopped gracefully")
}
