// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Package config loads relay configuration via Koanf v2 with layered
// sources: built-in defaults, an optional YAML config file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the relay process.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Relay    RelayConfig    `koanf:"relay"`
	Presence PresenceConfig `koanf:"presence"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig holds the HTTP delegate settings. Requests that are not
// recognized by the relay are reverse-proxied to this upstream application.
// An empty URL disables the delegate.
type UpstreamConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// RelayConfig holds transport tuning for WebSocket connections.
type RelayConfig struct {
	// SendBuffer is the per-client outbound queue size. A client whose
	// queue is full is disconnected rather than throttling senders.
	SendBuffer int `koanf:"send_buffer"`

	// MaxMessageBytes caps the size of a single inbound frame.
	MaxMessageBytes int64 `koanf:"max_message_bytes"`

	// HandshakeTimeout bounds the WebSocket upgrade handshake.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`

	// UpgradesPerSecond and UpgradeBurst rate-limit /ws upgrade attempts.
	UpgradesPerSecond float64 `koanf:"upgrades_per_second"`
	UpgradeBurst      int     `koanf:"upgrade_burst"`
}

// PresenceConfig holds idle-reaper tuning.
type PresenceConfig struct {
	// SweepInterval is how often the reaper scans the registry.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// IdleThreshold is how long an entry may go without presence activity
	// before it is evicted and announced offline.
	IdleThreshold time.Duration `koanf:"idle_threshold"`
}

// NATSConfig holds the optional server-side event ingest settings.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	Embedded      bool   `koanf:"embedded"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Upstream.URL != "" {
		u, err := url.Parse(c.Upstream.URL)
		if err != nil {
			return fmt.Errorf("upstream.url invalid: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("upstream.url scheme %q not supported", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("upstream.url %q has no host", c.Upstream.URL)
		}
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("relay.send_buffer must be at least 1, got %d", c.Relay.SendBuffer)
	}
	if c.Relay.MaxMessageBytes < 1 {
		return fmt.Errorf("relay.max_message_bytes must be positive, got %d", c.Relay.MaxMessageBytes)
	}
	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("presence.sweep_interval must be positive, got %s", c.Presence.SweepInterval)
	}
	if c.Presence.IdleThreshold <= 0 {
		return fmt.Errorf("presence.idle_threshold must be positive, got %s", c.Presence.IdleThreshold)
	}
	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.URL == "" {
		return fmt.Errorf("nats.url required when nats.enabled without nats.embedded")
	}
	if c.NATS.Enabled && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix must not be empty when nats.enabled")
	}
	return nil
}
