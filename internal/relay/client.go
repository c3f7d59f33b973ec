// StartLabX Relay - Realtime Presence and Room Fan-out
// Copyright 2026 StartLabX
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/startlabx/relay

package relay

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/startlabx/relay/internal/logging"
	"github.com/startlabx/relay/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024 // 512 KB
)

// clientIDCounter generates unique, monotonically increasing IDs so clients
// sort in a consistent order for fan-out, independent of map iteration.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
//
// The rooms set is the client's side of the membership index; it is read
// and written only by the hub under the hub's lock.
type Client struct {
	id      uint64
	connID  string
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	rooms   map[string]bool
	readMax int64
}

// NewClient wraps an upgraded connection. sendBuffer bounds the outbound
// queue; a client that falls that far behind is evicted by the hub.
// maxMessageBytes caps inbound frame size; zero means the default.
func NewClient(hub *Hub, conn *websocket.Conn, sendBuffer int, maxMessageBytes int64) *Client {
	if maxMessageBytes <= 0 {
		maxMessageBytes = maxMessageSize
	}
	return &Client{
		id:      clientIDCounter.Add(1),
		connID:  uuid.NewString(),
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		rooms:   make(map[string]bool),
		readMax: maxMessageBytes,
	}
}

// ID returns the client's ordering identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// ConnectionID returns the client's presence connection identifier.
func (c *Client) ConnectionID() string {
	return c.connID
}

// readPump pumps frames from the websocket connection into the hub. Frames
// that fail to decode are dropped without closing the connection; the
// protocol has no error events.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.readMax)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("connection_id", c.connID).Msg("unexpected websocket close error")
			}
			break
		}

		env, err := ParseEnvelope(raw)
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			logging.Warn().Err(err).Str("connection_id", c.connID).Msg("undecodable frame, dropping")
			continue
		}

		c.hub.Dispatch(c, env)
	}
}

// writePump pumps messages from the send queue to the websocket connection
// and keeps the connection alive with protocol pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				logging.Error().Err(err).Str("event", message.Event).Msg("failed to encode outbound message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Error().Err(err).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
