// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package relay

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Client-to-server event names.
const (
	EventJoinConversation        = "join_conversation"
	EventLeaveConversation       = "leave_conversation"
	EventSendMessage             = "send_message"
	EventTyping                  = "typing"
	EventJoinFeed                = "join_feed"
	EventLeaveFeed               = "leave_feed"
	EventNewPost                 = "new_post"
	EventPostLiked               = "post_liked"
	EventPostCommented           = "post_commented"
	EventSubscribeNotifications  = "subscribe_notifications"
	EventUnsubscribeNotification = "unsubscribe_notifications"
	EventSendNotification        = "send_notification"
	EventSubscribeAnalytics      = "subscribe_analytics"
	EventUnsubscribeAnalytics    = "unsubscribe_analytics"
	EventAnalyticsEvent          = "analytics_event"
	EventUserOnline              = "user_online"
	EventUpdatePresence          = "update_presence"
	EventPing                    = "ping"
)

// Server-to-client event names.
const (
	EventReceiveMessage    = "receive_message"
	EventReceivePost       = "receive_post"
	EventNewLike           = "new_like"
	EventNewComment        = "new_comment"
	EventNewNotification   = "new_notification"
	EventAnalyticsUpdate   = "analytics_update"
	EventUserStatusChanged = "user_status_changed"
	EventUserOffline       = "user_offline"
	EventPong              = "pong"
	// EventTyping and EventUserOnline are echoed under their inbound names.
)

// Envelope is one inbound frame: a tagged event with an opaque JSON payload.
// Payload fields beyond the routing keys are passed through untouched.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is one outbound frame. Data carries the original payload fields
// plus the server-injected timestamp.
type Message struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// ParseEnvelope decodes a raw frame. An empty event name is malformed.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("envelope has no event name")
	}
	return env, nil
}

// payload decodes the envelope's data into a map for relaying. A missing or
// null data section yields an empty map so timestamp injection always works.
func (e Envelope) payload() (map[string]interface{}, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return m, nil
}

// stringField extracts a required string routing field from a payload.
// Missing, empty, or non-string values are rejected at the boundary so a
// half-formed payload never turns into a room name.
func stringField(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// optionalStringField extracts an optional string field, returning empty
// string when absent or not a string.
func optionalStringField(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MarshalMessage converts an outbound message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
