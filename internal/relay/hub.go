// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

// Package relay implements the realtime fan-out core: a hub that owns the
// set of connected clients, their room memberships, and the per-event
// routing rules that redistribute inbound events to subscribers.
//
// Delivery is fire-and-forget. Events are never persisted, retried, or
// acknowledged; an event routed to an empty room is silently dropped, and
// ordering is guaranteed only within a single connection's stream.
package relay

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/startlabx/relay/internal/logging"
	"github.com/startlabx/relay/internal/metrics"
	"github.com/startlabx/relay/internal/presence"
)

// inboundFrame pairs an event with its source connection. A nil src marks a
// server-originated event (NATS ingest), which no routing rule excludes.
type inboundFrame struct {
	src *Client
	env Envelope
}

// Hub maintains the set of active clients, their room memberships, and the
// presence registry, and routes every event through a fixed per-event rule.
//
// All state transitions run on the single Run loop goroutine; the mutex
// exists so introspection (Stats, ClientCount) and tests can read safely.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	rooms    map[string]map[*Client]bool
	registry *presence.Registry

	Register   chan *Client
	Unregister chan *Client
	frames     chan inboundFrame
	offline    chan string

	started time.Time
	now     func() time.Time
}

// NewHub creates a hub backed by the given presence registry.
func NewHub(registry *presence.Registry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		registry:   registry,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		frames:     make(chan inboundFrame, 256),
		offline:    make(chan string, 64),
		started:    time.Now(),
		now:        time.Now,
	}
}

// Registry returns the presence registry the hub records into.
func (h *Hub) Registry() *presence.Registry {
	return h.registry
}

// Dispatch enqueues a client event for routing. If the hub's backlog is
// full the event is dropped rather than blocking the reader.
func (h *Hub) Dispatch(src *Client, env Envelope) {
	select {
	case h.frames <- inboundFrame{src: src, env: env}:
	default:
		metrics.EventsDropped.WithLabelValues("backlog").Inc()
		logging.Warn().Str("event", env.Event).Msg("hub backlog full, dropping event")
	}
}

// Ingest enqueues a server-originated event (no source connection).
func (h *Hub) Ingest(env Envelope) {
	h.Dispatch(nil, env)
}

// AnnounceOffline broadcasts a user_offline event for a user evicted
// outside the normal disconnect path (the idle reaper).
func (h *Hub) AnnounceOffline(userID string) {
	select {
	case h.offline <- userID:
	default:
		logging.Warn().Str("user_id", userID).Msg("offline backlog full, dropping announcement")
	}
}

// RunWithContext runs the hub event loop until the context is canceled,
// then closes all clients and returns ctx.Err(). Designed for suture
// supervision.
//
// Selection is priority-ordered so behavior stays predictable when several
// channels are ready: shutdown first, then client lifecycle, then events.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.handleRegister(client)
			continue
		case client := <-h.Unregister:
			h.handleUnregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleUnregister(client)

		case frame := <-h.frames:
			h.route(frame.src, frame.env)

		case userID := <-h.offline:
			h.broadcast(h.userOfflineMessage(userID), nil)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Str("connection_id", c.connID).Msg("client connected")
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.removeFromAllRoomsLocked(c)
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().Int("total_clients", total).Str("connection_id", c.connID).Msg("client disconnected")

	// A connection that never announced presence produces no offline event.
	if userID, ok := h.registry.RemoveByConnectionID(c.connID); ok {
		h.broadcast(h.userOfflineMessage(userID), nil)
	}
}

// route applies the per-event routing rule. Payloads missing a required
// routing field are dropped at the boundary; the sender gets no error event
// and nothing is relayed.
func (h *Hub) route(src *Client, env Envelope) {
	metrics.EventsReceived.WithLabelValues(env.Event).Inc()

	// Frames can trail a disconnect: the run loop drains Unregister before
	// queued frames, and slow-client eviction leaves frames behind. A dead
	// sender must never re-enter a room or receive on its closed queue.
	if src != nil && !h.isRegistered(src) {
		metrics.EventsDropped.WithLabelValues("stale_connection").Inc()
		logging.Debug().Str("event", env.Event).Str("connection_id", src.connID).Msg("frame from disconnected client, dropping")
		return
	}

	payload, err := env.payload()
	if err != nil {
		h.dropMalformed(env.Event, err.Error())
		return
	}

	switch env.Event {
	case EventJoinConversation:
		id, ok := stringField(payload, "conversationId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing conversationId")
			return
		}
		h.join(src, ConversationRoom(id))

	case EventLeaveConversation:
		id, ok := stringField(payload, "conversationId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing conversationId")
			return
		}
		h.leave(src, ConversationRoom(id))

	case EventSendMessage:
		id, ok := stringField(payload, "conversationId")
		if !ok {
			h.dropMalformed(env.Event, "missing conversationId")
			return
		}
		// The sender gets exactly one echo back as round-trip confirmation,
		// whether or not it joined the conversation room.
		h.toRoom(ConversationRoom(id), EventReceiveMessage, payload, src)
		if src != nil {
			h.deliver(h.message(EventReceiveMessage, payload), []*Client{src})
		}

	case EventTyping:
		id, ok := stringField(payload, "conversationId")
		if !ok {
			h.dropMalformed(env.Event, "missing conversationId")
			return
		}
		h.toRoom(ConversationRoom(id), EventTyping, payload, src)

	case EventJoinFeed:
		if src == nil {
			h.dropMalformed(env.Event, "no source connection")
			return
		}
		h.join(src, FeedRoom(optionalStringField(payload, "feedType")))

	case EventLeaveFeed:
		if src == nil {
			h.dropMalformed(env.Event, "no source connection")
			return
		}
		h.leave(src, FeedRoom(optionalStringField(payload, "feedType")))

	case EventNewPost:
		h.broadcast(h.message(EventReceivePost, payload), src)

	case EventPostLiked:
		h.toRoom(FeedRoom(DefaultFeed), EventNewLike, payload, nil)

	case EventPostCommented:
		h.toRoom(FeedRoom(DefaultFeed), EventNewComment, payload, nil)

	case EventSubscribeNotifications:
		userID, ok := stringField(payload, "userId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing userId")
			return
		}
		h.join(src, NotificationsRoom(userID))

	case EventUnsubscribeNotification:
		userID, ok := stringField(payload, "userId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing userId")
			return
		}
		h.leave(src, NotificationsRoom(userID))

	case EventSendNotification:
		userID, ok := stringField(payload, "userId")
		if !ok {
			h.dropMalformed(env.Event, "missing userId")
			return
		}
		h.toRoom(NotificationsRoom(userID), EventNewNotification, payload, nil)

	case EventSubscribeAnalytics:
		id, ok := stringField(payload, "dashboardId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing dashboardId")
			return
		}
		h.join(src, AnalyticsRoom(id))

	case EventUnsubscribeAnalytics:
		id, ok := stringField(payload, "dashboardId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing dashboardId")
			return
		}
		h.leave(src, AnalyticsRoom(id))

	case EventAnalyticsEvent:
		id, ok := stringField(payload, "dashboardId")
		if !ok {
			h.dropMalformed(env.Event, "missing dashboardId")
			return
		}
		h.toRoom(AnalyticsRoom(id), EventAnalyticsUpdate, payload, nil)

	case EventUserOnline:
		userID, ok := stringField(payload, "userId")
		if !ok || src == nil {
			h.dropMalformed(env.Event, "missing userId")
			return
		}
		entry := h.registry.RecordOnline(userID, src.connID, optionalStringField(payload, "status"))
		payload["status"] = entry.Status
		h.broadcast(h.message(EventUserOnline, payload), nil)

	case EventUpdatePresence:
		userID, ok := stringField(payload, "userId")
		if !ok {
			h.dropMalformed(env.Event, "missing userId")
			return
		}
		status, ok := stringField(payload, "status")
		if !ok {
			h.dropMalformed(env.Event, "missing status")
			return
		}
		// Unknown users are a silent no-op: the sender cannot know whether
		// the target ever announced presence.
		if _, known := h.registry.UpdateStatus(userID, status); known {
			h.broadcast(h.message(EventUserStatusChanged, payload), nil)
		}

	case EventPing:
		if src == nil {
			return
		}
		h.registry.TouchByConnectionID(src.connID)
		h.deliver(h.message(EventPong, map[string]interface{}{}), []*Client{src})

	default:
		metrics.EventsDropped.WithLabelValues("unknown_event").Inc()
		logging.Warn().Str("event", env.Event).Msg("unknown event, dropping")
	}
}

func (h *Hub) isRegistered(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[c]
}

func (h *Hub) dropMalformed(event, reason string) {
	metrics.EventsDropped.WithLabelValues("malformed").Inc()
	logging.Warn().Str("event", event).Str("reason", reason).Msg("malformed event, dropping")
}

// message builds an outbound frame with the server timestamp injected
// alongside the original payload fields.
func (h *Hub) message(event string, payload map[string]interface{}) Message {
	data := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["timestamp"] = h.now().UTC().Format(time.RFC3339)
	return Message{Event: event, Data: data}
}

func (h *Hub) userOfflineMessage(userID string) Message {
	return h.message(EventUserOffline, map[string]interface{}{"userId": userID})
}

// join adds a client to a room. Idempotent.
func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
		metrics.WSRooms.Set(float64(len(h.rooms)))
	}
	if !members[c] {
		members[c] = true
		c.rooms[room] = true
		logging.Debug().Str("room", room).Str("connection_id", c.connID).Msg("client joined room")
	}
}

// leave removes a client from a room; a no-op when not a member. Empty
// rooms are deleted so the room gauge reflects live rooms only.
func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok || !members[c] {
		return
	}
	delete(members, c)
	delete(c.rooms, room)
	if len(members) == 0 {
		delete(h.rooms, room)
		metrics.WSRooms.Set(float64(len(h.rooms)))
	}
}

func (h *Hub) removeFromAllRoomsLocked(c *Client) {
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
}

// toRoom relays an event to every member of a room, excluding the given
// sender when non-nil. An empty room drops the event silently.
func (h *Hub) toRoom(room, event string, payload map[string]interface{}, except *Client) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(h.message(event, payload), members)
}

// broadcast relays a message to every connected client, excluding the
// given sender when non-nil.
func (h *Hub) broadcast(msg Message, except *Client) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.deliver(msg, targets)
}

// deliver enqueues a message on each target's send queue in a fixed order
// (by client ID, for reproducible delivery sequences). A client whose queue
// is full cannot keep up and is dropped; the relay never throttles senders.
func (h *Hub) deliver(msg Message, targets []*Client) {
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	var slow []*Client
	for _, c := range targets {
		// A target can drop out between the snapshot and the send; its
		// queue is closed once unregistered.
		if !h.isRegistered(c) {
			continue
		}
		select {
		case c.send <- msg:
			metrics.EventsDelivered.WithLabelValues(msg.Event).Inc()
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		metrics.EventsDropped.WithLabelValues("slow_client").Inc()
		logging.Warn().Str("connection_id", c.connID).Msg("send queue full, dropping client")
		h.handleUnregister(c)
	}
}

// shutdown closes every client and logs the reason. Context cancellation is
// expected during graceful shutdown and is not treated as an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		delete(h.clients, c)
		h.removeFromAllRoomsLocked(c)
		close(c.send)
	}
	h.mu.Unlock()

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}

	metrics.WSConnections.Set(0)
	logging.Info().
		Str("component", "hub").
		Str("reason", reason).
		Int("clients_closed", len(clients)).
		Msg("hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats is a point-in-time view of the hub for introspection endpoints.
type Stats struct {
	Connections   int            `json:"connections"`
	Rooms         map[string]int `json:"rooms"`
	OnlineUsers   int            `json:"onlineUsers"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
}

// Snapshot returns current connection, room, and presence counts.
func (h *Hub) Snapshot() Stats {
	h.mu.RLock()
	rooms := make(map[string]int, len(h.rooms))
	for name, members := range h.rooms {
		rooms[name] = len(members)
	}
	connections := len(h.clients)
	h.mu.RUnlock()

	return Stats{
		Connections:   connections,
		Rooms:         rooms,
		OnlineUsers:   h.registry.Len(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}
