// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200"))

	RecordHTTPRequest("GET", "/healthz", 200, 5*time.Millisecond)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/healthz", "200"))
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestEventCounters(t *testing.T) {
	before := testutil.ToFloat64(EventsReceived.WithLabelValues("send_message"))
	EventsReceived.WithLabelValues("send_message").Inc()
	after := testutil.ToFloat64(EventsReceived.WithLabelValues("send_message"))
	if after != before+1 {
		t.Errorf("EventsReceived = %v, want %v", after, before+1)
	}

	before = testutil.ToFloat64(EventsDropped.WithLabelValues("malformed"))
	EventsDropped.WithLabelValues("malformed").Inc()
	after = testutil.ToFloat64(EventsDropped.WithLabelValues("malformed"))
	if after != before+1 {
		t.Errorf("EventsDropped = %v, want %v", after, before+1)
	}
}

func TestGauges(t *testing.T) {
	WSConnections.Set(3)
	if got := testutil.ToFloat64(WSConnections); got != 3 {
		t.Errorf("WSConnections = %v, want 3", got)
	}
	WSConnections.Set(0)

	PresenceOnline.Set(7)
	if got := testutil.ToFloat64(PresenceOnline); got != 7 {
		t.Errorf("PresenceOnline = %v, want 7", got)
	}
	PresenceOnline.Set(0)
}
