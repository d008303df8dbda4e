// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package eventbus implements the Event Store & Real-time Bus (component D):
the producer-side dedup ring, the short-lived catch-up log, the NATS
JetStream ingestion transport the Tiered Poller submits events over, and
the glue that persists a durable copy to internal/store before fanning
out to internal/websocket.

Architecture:

	poller.EventSink          Bus.Submit            JetStream subject
	──────────────►  Bus  ──────────────────► "fleetd.events" ──┐
	                                                              │ durable consumer
	                                                              ▼
	                                                        Bus.Serve (consumer loop)
	                                                     dedup ring │ always
	                                                      (key,hash)│
	                                                    discard ◄───┤
	                                                                ▼
	                                                  store.InsertEvent (DB, durable)
	                                                  catchup.Append (in-memory ring)
	                                                  hub.PublishEvent (unconditional)

Two independent dedup layers exist and serve different purposes:

  - JetStream message-ID dedup (Nats-Msg-Id = event.EventID) is a
    transport-level safety net against the publisher retrying the same
    publish call; it sits upstream of everything else.
  - The Bus's own (subscription_key, change_hash) ring is the
    content-level dedup the spec describes in §4.D: events that are
    byte-identical in meaning, observed close together, regardless of
    EventID.

Fan-out is never deduplicated: every event that clears the producer-side
ring above is pushed to websocket.Hub unconditionally. Re-introducing a
dedup step on the fan-out path caused the data-gap regression this
design document warns against (see SPEC_FULL.md §9).

Key Components:

  - Dedup: the producer-side (key, change_hash) window
  - CatchUpLog: the bounded, TTL-expiring per-key ring clients replay on
    reconnect, served over the admin HTTP surface (internal/api), never
    pushed through the WebSocket channel itself
  - EmbeddedServer: optional in-process nats-server/v2 JetStream server
  - Publisher / Subscriber: thin ThreeDotsLabs/watermill wrappers over
    watermill-nats, grounded on the teacher's internal/eventprocessor
    publisher.go/subscriber.go
  - Bus: ties ingestion, dedup, persistence, catch-up, and fan-out
    together; implements poller.EventSink and suture.Service

See Also:

  - internal/store: durable realtime_events_cache persistence
  - internal/websocket: the fan-out hub this package publishes into
  - internal/poller: the sole producer calling Bus.Submit
*/
package eventbus
