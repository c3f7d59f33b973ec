// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package relay

import "testing"

func TestRoomNames(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"conversation", ConversationRoom("c1"), "conversation:c1"},
		{"feed explicit", FeedRoom("global"), "feed:global"},
		{"feed default", FeedRoom(""), "feed:global"},
		{"feed custom", FeedRoom("following"), "feed:following"},
		{"notifications", NotificationsRoom("u1"), "notifications:u1"},
		{"analytics", AnalyticsRoom("d1"), "analytics:d1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
