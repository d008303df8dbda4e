// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// MessageTypeDataUpdate is the server->client message type for fanned-out events.
const MessageTypeDataUpdate = "data_update"

// ClientMessage is a client->server control message: subscribe or
// unsubscribe from a subscription key built from its component fields.
type ClientMessage struct {
	Type        string `json:"type"` // "subscribe", "unsubscribe", or "ping"
	DataType    string `json:"dataType"`
	Device      int64  `json:"device"`
	Channel     *int   `json:"channel,omitempty"`
	PublisherID *int   `json:"publisherId,omitempty"`
}

// DataUpdateMessage is the server->client message shape for a fanned-out
// event. Cached is always false here; catch-up replay is served over the
// admin HTTP surface, not pushed through this channel.
type DataUpdateMessage struct {
	Type            string    `json:"type"`
	SubscriptionKey string    `json:"subscriptionKey"`
	DataType        string    `json:"dataType"`
	Device          int64     `json:"device"`
	Channel         *int      `json:"channel,omitempty"`
	PublisherID     *int      `json:"publisherId,omitempty"`
	Data            any       `json:"data"`
	Timestamp       time.Time `json:"timestamp"`
	Cached          bool      `json:"cached"`
}

// PongMessage is sent in reply to a client-initiated application-level ping.
type PongMessage struct {
	Type string `json:"type"`
}

// subscriptionRequest pairs a client with the subscription key it wants
// to add or remove.
type subscriptionRequest struct {
	client *Client
	key    string
}

// Hub maintains the set of active clients and routes events to the
// clients subscribed to each event's subscription key.
type Hub struct {
	clients        map[*Client]bool
	subscriptions  map[string]map[*Client]bool // subscription key -> subscribed clients
	clientSubCount map[*Client]int             // subscription count per client, for the per-client cap
	ipConnCount    map[string]int              // connection count per remote address, for the per-IP cap

	cfg config.EventBusConfig

	Register    chan *Client
	Unregister  chan *Client
	Subscribe   chan subscriptionRequest
	Unsubscribe chan subscriptionRequest

	publish chan *models.Event

	mu sync.RWMutex
}

// NewHub creates a new Hub enforcing cfg's connection and subscription
// caps. A zero-value cfg disables every cap (treated as unlimited),
// which is convenient for tests that don't exercise resource limits.
func NewHub(cfg config.EventBusConfig) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		subscriptions:  make(map[string]map[*Client]bool),
		clientSubCount: make(map[*Client]int),
		ipConnCount:    make(map[string]int),
		cfg:            cfg,
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		Subscribe:      make(chan subscriptionRequest),
		Unsubscribe:    make(chan subscriptionRequest),
		publish:        make(chan *models.Event, 256),
	}
}

// ReserveConnection atomically checks the global and per-remote-address
// connection caps and, if both have room, reserves a slot for
// remoteAddr. Callers must pair a true result with exactly one
// ReleaseConnection call (directly, if the upgrade then fails, or via
// unregisterClient once the resulting Client disconnects).
func (h *Hub) ReserveConnection(remoteAddr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.MaxConnections > 0 && h.totalReserved() >= h.cfg.MaxConnections {
		return false
	}
	if h.cfg.MaxConnectionsPerIP > 0 && h.ipConnCount[remoteAddr] >= h.cfg.MaxConnectionsPerIP {
		return false
	}
	h.ipConnCount[remoteAddr]++
	return true
}

// totalReserved sums ipConnCount: every connection reserved via
// ReserveConnection, whether or not it has gone on to register a
// Client yet. Must be called with h.mu held.
func (h *Hub) totalReserved() int {
	total := 0
	for _, n := range h.ipConnCount {
		total += n
	}
	return total
}

// ReleaseConnection releases a slot reserved by ReserveConnection
// without a corresponding registered Client (i.e. the upgrade itself
// failed after the reservation succeeded).
func (h *Hub) ReleaseConnection(remoteAddr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.releaseIP(remoteAddr)
}

// releaseIP decrements remoteAddr's reservation count, clearing the
// entry at zero. Must be called with h.mu held.
func (h *Hub) releaseIP(remoteAddr string) {
	if h.ipConnCount[remoteAddr] > 0 {
		h.ipConnCount[remoteAddr]--
		if h.ipConnCount[remoteAddr] == 0 {
			delete(h.ipConnCount, remoteAddr)
		}
	}
}

// RunWithContext starts the hub with context support for graceful shutdown.
// This method is designed for use with suture supervision.
//
// When the context is canceled:
//  1. All connected clients are gracefully closed
//  2. The method returns ctx.Err()
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
//   - Priority 1: Context cancellation (shutdown)
//   - Priority 2: Client lifecycle and subscription events
//   - Priority 3: Event publication (fan-out)
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		case req := <-h.Subscribe:
			h.subscribeClient(req)
			continue
		case req := <-h.Unsubscribe:
			h.unsubscribeClient(req)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case req := <-h.Subscribe:
			h.subscribeClient(req)

		case req := <-h.Unsubscribe:
			h.unsubscribeClient(req)

		case event := <-h.publish:
			h.fanOut(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	logging.Info().Int("total_clients", h.GetClientCount()).Msg("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for key, subs := range h.subscriptions {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, key)
			}
		}
		delete(h.clientSubCount, client)
		h.releaseIP(client.RemoteAddr)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

func (h *Hub) subscribeClient(req subscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[req.key]
	if !ok {
		subs = make(map[*Client]bool)
		h.subscriptions[req.key] = subs
	}
	if subs[req.client] {
		return
	}
	if h.cfg.MaxSubscriptionsPerClient > 0 && h.clientSubCount[req.client] >= h.cfg.MaxSubscriptionsPerClient {
		logging.Warn().
			Str("subscription_key", req.key).
			Int("limit", h.cfg.MaxSubscriptionsPerClient).
			Msg("client subscription cap reached, dropping subscribe request")
		return
	}

	subs[req.client] = true
	h.clientSubCount[req.client]++
	logging.Debug().Str("subscription_key", req.key).Msg("client subscribed")
}

func (h *Hub) unsubscribeClient(req subscriptionRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subscriptions[req.key]; ok {
		if subs[req.client] {
			delete(subs, req.client)
			h.clientSubCount[req.client]--
			if h.clientSubCount[req.client] <= 0 {
				delete(h.clientSubCount, req.client)
			}
		}
		if len(subs) == 0 {
			delete(h.subscriptions, req.key)
		}
	}
	logging.Debug().Str("subscription_key", req.key).Msg("client unsubscribed")
}

// logGracefulShutdown logs the shutdown with structured fields for observability.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()
	reason := getShutdownReason(ctx)

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// fanOut delivers an event to every client subscribed to its subscription
// key, in deterministic client-ID order.
//
// DETERMINISM: Sorts subscribers by ID to ensure consistent delivery order,
// which matters for tests and for reproducing reported client behavior.
func (h *Hub) fanOut(event *models.Event) {
	key := event.SubscriptionKey()

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subscriptions[key]
	if !ok || len(subs) == 0 {
		return
	}

	clients := make([]*Client, 0, len(subs))
	for client := range subs {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	msg := DataUpdateMessage{
		Type:            MessageTypeDataUpdate,
		SubscriptionKey: key,
		DataType:        string(event.Type),
		Device:          event.Device,
		Channel:         event.Channel,
		PublisherID:     event.Publisher,
		Data:            event.Data,
		Timestamp:       event.EventTimestamp,
		Cached:          false,
	}

	for _, client := range clients {
		enqueueDroppingOldest(client.send, msg)
	}
}

// enqueueDroppingOldest sends msg on a client's bounded queue, and on
// overflow drops the oldest queued message to make room rather than
// blocking or disconnecting the client: a slow client loses stale
// updates, not its connection.
func enqueueDroppingOldest(send chan any, msg any) {
	select {
	case send <- msg:
		return
	default:
	}

	select {
	case <-send:
	default:
	}

	select {
	case send <- msg:
	default:
		// A concurrent receiver refilled the queue between the drop
		// and this retry; this single update is lost rather than
		// risking a blocking send here.
	}
}

// closeAllClients gracefully closes all connected WebSocket clients.
// DETERMINISM: Closes clients in ID order for consistent shutdown behavior.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.subscriptions = make(map[string]map[*Client]bool)
	h.clientSubCount = make(map[*Client]int)
	h.ipConnCount = make(map[string]int)
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// PublishEvent enqueues an event for fan-out to its subscribers. Uses a
// non-blocking send so a full queue can never stall the poller/eventbus
// pipeline upstream; an overflow is logged and the event dropped from
// real-time delivery (catch-up queries still serve it from the ring).
func (h *Hub) PublishEvent(event *models.Event) {
	select {
	case h.publish <- event:
	default:
		logging.Warn().Str("subscription_key", event.SubscriptionKey()).Msg("publish channel full, dropping event from real-time fan-out")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetSubscriberCount returns the number of clients subscribed to key.
func (h *Hub) GetSubscriberCount(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[key])
}
