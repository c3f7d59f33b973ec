// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/startlabx/relay/internal/config"
	"github.com/startlabx/relay/internal/logging"
	"github.com/startlabx/relay/internal/metrics"
)

const breakerName = "upstream-delegate"

// Delegate reverse-proxies unrecognized requests to the upstream web
// application, shielded by a circuit breaker so a dead upstream cannot tie
// up relay connections.
type Delegate struct {
	proxy *httputil.ReverseProxy
}

// NewDelegate builds the delegate for the configured upstream. Returns nil
// when no upstream is configured; callers then serve 404s instead.
func NewDelegate(cfg config.UpstreamConfig) (*Delegate, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Open after a 60% failure rate over at least 10 requests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
	})

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = &breakerTransport{
		base: &http.Transport{ResponseHeaderTimeout: cfg.Timeout},
		cb:   cb,
	}
	proxy.ErrorHandler = delegateErrorHandler

	return &Delegate{proxy: proxy}, nil
}

// ServeHTTP implements http.Handler.
func (d *Delegate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.proxy.ServeHTTP(w, r)
}

// breakerTransport wraps the proxy transport so transport failures count
// against the circuit breaker. Upstream HTTP error statuses are responses,
// not failures.
type breakerTransport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.cb.Execute(func() (*http.Response, error) {
		return t.base.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	metrics.UpstreamRequests.WithLabelValues("success").Inc()
	return resp, nil
}

func delegateErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.UpstreamRequests.WithLabelValues("rejected").Inc()
		logging.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream request rejected by circuit breaker")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "upstream unavailable"})
		return
	}

	metrics.UpstreamRequests.WithLabelValues("failure").Inc()
	logging.Error().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": "bad gateway"})
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
