// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/startlabx/relay/internal/config"
)

func TestNewDelegate_EmptyURLDisables(t *testing.T) {
	delegate, err := NewDelegate(config.UpstreamConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delegate != nil {
		t.Error("delegate should be nil when no upstream is configured")
	}
}

func TestNewDelegate_InvalidURL(t *testing.T) {
	if _, err := NewDelegate(config.UpstreamConfig{URL: "://bad"}); err == nil {
		t.Error("expected error for invalid upstream URL")
	}
}

func TestDelegate_ForwardsToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("app:" + r.URL.Path))
	}))
	defer upstream.Close()

	delegate, err := NewDelegate(config.UpstreamConfig{URL: upstream.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	_, srv := setupServer(t, testConfig(), delegate)

	resp, err := http.Get(srv.URL + "/api/posts/p1")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Upstream") != "yes" {
		t.Error("response should come from upstream")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "app:/api/posts/p1" {
		t.Errorf("body = %q, want app:/api/posts/p1", body)
	}
}

func TestDelegate_RelayRoutesNotProxied(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream should not receive %s", r.URL.Path)
	}))
	defer upstream.Close()

	delegate, err := NewDelegate(config.UpstreamConfig{URL: upstream.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	_, srv := setupServer(t, testConfig(), delegate)

	for _, path := range []string{"/healthz", "/api/v1/stats", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestDelegate_BadGatewayOnDeadUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	delegate, err := NewDelegate(config.UpstreamConfig{URL: url, Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	_, srv := setupServer(t, testConfig(), delegate)

	resp, err := http.Get(srv.URL + "/api/posts")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestStateConversions(t *testing.T) {
	if stateToString(0) != "closed" || stateToFloat(0) != 0 {
		t.Error("closed state mapping wrong")
	}
	if stateToString(1) != "half-open" || stateToFloat(1) != 1 {
		t.Error("half-open state mapping wrong")
	}
	if stateToString(2) != "open" || stateToFloat(2) != 2 {
		t.Error("open state mapping wrong")
	}
}
