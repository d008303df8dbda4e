// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/models"
)

// Fallback timing/sizing used when a Client's Hub was built with a
// zero-value config.EventBusConfig (e.g. in tests that don't care
// about these values).
const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultPingPeriod     = (defaultPongWait * 9) / 10
	defaultMaxMessageSize = 512 * 1024
	defaultSendQueueSize  = 256
)

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// DETERMINISM: This ensures clients can be sorted in a consistent order for
// fan-out operations, eliminating non-deterministic map iteration order.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub.
// Subject and Permissions come from the bearer token validated during
// the upgrade handshake; they are not re-checked per message but are
// available to the handler for per-subscription authorization.
type Client struct {
	// id is a unique identifier for this client, used for deterministic ordering.
	id          uint64
	hub         *Hub
	conn        *websocket.Conn
	send        chan any
	Subject     string
	Permissions []string

	// RemoteAddr is the connection's remote address (host, no port),
	// used by the Hub to enforce the per-remote-address connection cap
	// and released back to the Hub when the client disconnects.
	RemoteAddr string

	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
}

// NewClient creates a new Client with a unique deterministic ID. Its
// queue size and connection timings come from hub's EventBusConfig,
// falling back to this package's defaults for any zero-valued field
// (a convenience for callers, production or test, that don't need to
// tune every knob).
func NewClient(hub *Hub, conn *websocket.Conn, subject string, permissions []string, remoteAddr string) *Client {
	cfg := hub.cfg

	sendQueueSize := cfg.SendQueueSize
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	pongWait := cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	pingPeriod := cfg.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = (pongWait * 9) / 10
	}
	writeWait := cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}

	return &Client{
		id:             clientIDCounter.Add(1),
		hub:            hub,
		conn:           conn,
		send:           make(chan any, sendQueueSize),
		Subject:        subject,
		Permissions:    permissions,
		RemoteAddr:     remoteAddr,
		writeWait:      writeWait,
		pongWait:       pongWait,
		pingPeriod:     pingPeriod,
		maxMessageSize: maxMessageSize,
	}
}

// ID returns the client's unique identifier for deterministic ordering.
func (c *Client) ID() uint64 {
	return c.id
}

// readPump pumps control messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}

		switch msg.Type {
		case "ping":
			select {
			case c.send <- PongMessage{Type: "pong"}:
			default:
			}

		case "subscribe":
			key := models.BuildSubscriptionKey(models.EventType(msg.DataType), msg.Device, msg.Channel, msg.PublisherID)
			c.hub.Subscribe <- subscriptionRequest{client: c, key: key}

		case "unsubscribe":
			key := models.BuildSubscriptionKey(models.EventType(msg.DataType), msg.Device, msg.Channel, msg.PublisherID)
			c.hub.Unsubscribe <- subscriptionRequest{client: c, key: key}

		default:
			logging.Warn().Str("type", msg.Type).Msg("unknown client message type")
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write JSON message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
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
