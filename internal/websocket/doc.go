// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package websocket provides real-time fan-out of fleet events to subscribed
clients over gorilla/websocket connections.

Unlike a single-topic broadcast, every connected client subscribes to one or
more subscription keys built from an event's type, device, and optional
channel/publisher — see models.BuildSubscriptionKey. The Hub routes each
published event only to the clients subscribed to its exact key; it never
broadcasts to every connection.

Key Components:

  - Hub: tracks connections and per-key subscriber sets, fans out events
  - Client: one WebSocket connection with its own read/write goroutines
  - ClientMessage: client->server control frame (subscribe, unsubscribe, ping)
  - DataUpdateMessage: server->client frame carrying a fanned-out event

Architecture:

	┌──────────┐   publish(event)   ┌────────────────────────┐
	│  poller  │ ─────────────────► │          Hub           │
	│ eventbus │                    │ subscriptions[key][*C] │
	└──────────┘                    └──────────┬─────────────┘
	                                            │ fan-out to subscribers of key
	                        ┌───────────────────┼───────────────────┐
	                        │                   │                   │
	                   Client (sub A)      Client (sub A,B)    Client (sub B)

Each client runs two goroutines:
  - readPump: reads ClientMessage frames, applies subscribe/unsubscribe,
    answers application-level pings
  - writePump: delivers DataUpdateMessage frames, sends periodic WebSocket
    pings, enforces write deadlines

Authentication:

The upgrade handshake validates a bearer token (internal/auth) before the
connection is handed to NewClient; the token's subject and permission list
are attached to the Client and available to the handler for per-subscription
authorization decisions. The hub itself does not re-check permissions on
every message.

Usage Example - Server:

	hub := websocket.NewHub(cfg.EventBus)
	go hub.RunWithContext(ctx)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
	    claims, err := auth.ValidateFromRequest(r)
	    if err != nil {
	        http.Error(w, "unauthorized", http.StatusUnauthorized)
	        return
	    }
	    remoteAddr := clientIP(r)
	    if !hub.ReserveConnection(remoteAddr) {
	        http.Error(w, "too many connections", http.StatusTooManyRequests)
	        return
	    }
	    conn, err := upgrader.Upgrade(w, r, nil)
	    if err != nil {
	        hub.ReleaseConnection(remoteAddr)
	        return
	    }
	    client := websocket.NewClient(hub, conn, claims.Subject, claims.Permissions, remoteAddr)
	    hub.Register <- client
	    client.Start()
	})

	// Elsewhere, when the poller/eventbus observes a change:
	hub.PublishEvent(event)

Usage Example - Client (subscribe frame):

	ws.send(JSON.stringify({
	    type: "subscribe",
	    dataType: "publisher_status",
	    device: 42,
	    channel: 1
	}))

	ws.onmessage = (evt) => {
	    const msg = JSON.parse(evt.data)
	    if (msg.type === "data_update") {
	        applyUpdate(msg.subscriptionKey, msg.data)
	    }
	}

Connection Lifecycle:

 1. Client connects via HTTP upgrade with a valid bearer token
 2. Hub registers the client
 3. Client sends subscribe frames for the keys it wants
 4. Hub fans out matching events as they are published
 5. Client disconnects (network error or explicit close)
 6. Hub unregisters the client and drops all of its subscriptions

Thread Safety:

The Hub serializes all state mutation through its RunWithContext loop;
exported methods communicate with it over channels or a RWMutex-guarded
read path (GetClientCount, GetSubscriberCount). Each client has its own
read/write goroutines and no shared mutable state with other clients.

Configuration:

All timings, queue sizes, and connection/subscription caps come from
config.EventBusConfig (see internal/config), with package-level
defaults used for any zero-valued field:

	writeWait                 = 10s  (time allowed to write a message)
	pongWait                  = 60s  (time allowed to read a pong)
	pingPeriod                = 54s  (9/10 of pongWait, must stay below it)
	maxMessageSize            = 512 KB
	sendQueueSize             = 100  (per-subscription queue; overflow drops oldest)
	maxConnectionsPerIP       = 25   (enforced by ReserveConnection/ReleaseConnection)
	maxSubscriptionsPerClient = 50   (enforced by Hub.subscribeClient)

See Also:

  - github.com/gorilla/websocket: underlying WebSocket library
  - internal/models: Event, EventType, subscription key encoding
  - internal/auth: bearer token validation performed before upgrade
  - internal/eventbus: publishes events into the hub
*/
package websocket
