// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
	"github.com/tomtom215/fleetd/internal/wal"
)

// transportPublisher adapts *transport's unexported publish method to
// wal.Publisher, so the RetryLoop can republish through the same NATS
// transport Submit uses without exporting publish outside this package.
type transportPublisher struct{ t *transport }

func (p transportPublisher) Publish(id string, payload []byte) error {
	return p.t.publish(id, payload)
}

// Hub is the subset of *websocket.Hub the Bus fans events out to.
// Defined here so tests can substitute a recording stub instead of
// standing up a real Hub.
type Hub interface {
	PublishEvent(event *models.Event)
}

// Store is the subset of store.Store the Bus needs: durable persistence
// of ingested events, administrative catch-up once the in-memory ring
// has nothing left for a key, and the periodic expiry sweep. Declared
// locally so tests can substitute a recording stub instead of a real
// store.Store, which carries many methods (device/channel CRUD) the Bus
// never touches.
type Store interface {
	InsertEvent(ctx context.Context, event models.Event) error
	LatestEvents(ctx context.Context, subscriptionKey string, limit int) ([]models.Event, error)
	PurgeExpiredEvents(ctx context.Context, cutoff time.Time) (int64, error)
}

// Bus is the Event Store & Real-time Bus (component D): the sole
// implementation of poller.EventSink, and the glue between the NATS
// ingestion transport, durable storage, the in-memory catch-up log, and
// WebSocket fan-out. It is itself a suture.Service: Serve runs the
// consumer loop that drains the ingestion transport.
type Bus struct {
	cfg   config.EventBusConfig
	store Store
	hub   Hub

	dedup    *dedup
	catchUp  *catchUpLog
	embedded *embeddedServer
	transp   *transport

	wal       *wal.WAL
	retryLoop *wal.RetryLoop
}

// New builds a Bus. If natsCfg.EmbeddedServer is set, an in-process
// JetStream server is started and natsCfg.URL is ignored in favor of
// its loopback client URL; otherwise the Bus dials natsCfg.URL directly
// against an externally managed NATS cluster. A BadgerDB write-ahead
// log is opened at walCfg.Path: Submit writes to it before publishing,
// so an event already accepted from a device or the ingest endpoint
// survives a NATS outage or a crash between write and publish.
func New(ctx context.Context, cfg config.EventBusConfig, natsCfg config.NATSConfig, detectorCfg config.DetectorConfig, walCfg config.WALConfig, st Store, hub Hub) (*Bus, error) {
	b := &Bus{
		cfg:     cfg,
		store:   st,
		hub:     hub,
		dedup:   newDedup(detectorCfg),
		catchUp: newCatchUpLog(cfg),
	}

	url := natsCfg.URL
	if natsCfg.EmbeddedServer {
		srv, err := startEmbeddedServer(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded nats server: %w", err)
		}
		b.embedded = srv
		url = srv.ClientURL()
	}

	transp, err := newTransport(ctx, url, natsCfg)
	if err != nil {
		if b.embedded != nil {
			_ = b.embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("build nats transport: %w", err)
	}
	b.transp = transp

	w, err := wal.Open(wal.Config{Path: walCfg.Path, SyncWrites: walCfg.SyncWrites})
	if err != nil {
		transp.close()
		if b.embedded != nil {
			_ = b.embedded.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("open event wal: %w", err)
	}
	b.wal = w
	b.retryLoop = wal.NewRetryLoop(w, transportPublisher{t: transp}, walCfg.RetryInterval)

	return b, nil
}

// String implements fmt.Stringer for suture's logging.
func (b *Bus) String() string {
	return "event-bus"
}

// RetryLoop returns the WAL retry-loop service, for the caller to add
// to the supervisor tree alongside Serve and the Sweeper.
func (b *Bus) RetryLoop() *wal.RetryLoop {
	return b.retryLoop
}

// Submit implements poller.EventSink: it durably logs event to the WAL
// and publishes it onto the ingestion transport. Persistence into the
// canonical store, content-level dedup, and fan-out all happen
// downstream in Serve's consumer loop, not here, so a slow or
// unavailable consumer never blocks the poller's tick. If the
// transport publish fails, the WAL entry is left pending for the
// retry loop rather than being lost.
func (b *Bus) Submit(ctx context.Context, event models.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	if err := b.wal.Write(event.EventID, payload); err != nil {
		return fmt.Errorf("wal write event %s: %w", event.EventID, err)
	}

	metrics.RecordEventPublished(string(event.Type))
	if err := b.transp.publish(event.EventID, payload); err != nil {
		logging.Warn().Err(err).Str("event_id", event.EventID).
			Msg("ingestion transport publish failed, event left pending in wal for retry")
		return err
	}

	if err := b.wal.Confirm(event.EventID); err != nil {
		logging.Warn().Err(err).Str("event_id", event.EventID).Msg("wal failed to confirm published event")
	}
	return nil
}

// Serve implements suture.Service: drains the ingestion transport until
// ctx is canceled, applying content-level dedup, durable persistence,
// catch-up bookkeeping, and fan-out to each surviving event.
func (b *Bus) Serve(ctx context.Context) error {
	messages, err := b.transp.consume(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to ingestion transport: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return suture.ErrDoNotRestart
			}
			b.handle(ctx, msg)
		}
	}
}

// handle processes one inbound transport message: parse, dedup,
// persist, catch-up, fan-out, ack/nack. JetStream's own Nats-Msg-Id
// dedup has already filtered exact republish retries before this runs;
// what remains here is content-level (key, change_hash) dedup, which
// JetStream has no visibility into.
func (b *Bus) handle(ctx context.Context, msg *message.Message) {
	start := time.Now()

	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("failed to unmarshal ingested event, dropping")
		metrics.RecordIngestMessage(time.Since(start), true)
		msg.Ack() // malformed payload will never parse on redelivery
		return
	}

	key := event.SubscriptionKey()
	if b.dedup.seen(key, event.ChangeHash) {
		msg.Ack()
		metrics.RecordIngestMessage(time.Since(start), false)
		return
	}

	if err := b.store.InsertEvent(ctx, event); err != nil {
		logging.Warn().Err(err).Str("event_id", event.EventID).Msg("failed to persist ingested event, will redeliver")
		msg.Nack()
		metrics.RecordIngestMessage(time.Since(start), false)
		return
	}

	b.catchUp.append(event)
	b.hub.PublishEvent(&event)
	metrics.RecordEventFannedOut(string(event.Type))

	msg.Ack()
	metrics.RecordIngestMessage(time.Since(start), false)
}

// Shutdown releases the transport, the WAL, and, if this Bus started
// one, the embedded NATS server. Call after the supervisor tree has
// stopped Serve.
func (b *Bus) Shutdown(ctx context.Context) error {
	if b.transp != nil {
		b.transp.close()
	}
	if b.wal != nil {
		if err := b.wal.Close(); err != nil {
			logging.Warn().Err(err).Msg("failed to close event wal")
		}
	}
	if b.embedded != nil {
		return b.embedded.Shutdown(ctx)
	}
	return nil
}

// LatestEvents serves the in-memory catch-up log first, falling back to
// the durable store only when the ring holds nothing for key (e.g.
// right after a restart, before any event has repopulated it).
func (b *Bus) LatestEvents(ctx context.Context, key string, limit int) ([]models.Event, error) {
	if events := b.catchUp.latest(key, limit); len(events) > 0 {
		return events, nil
	}
	return b.store.LatestEvents(ctx, key, limit)
}

// sweepInterval is how often Sweeper purges expired durable events and
// in-memory catch-up rings.
const sweepInterval = 5 * time.Minute

// durableRetention is how long a durable event survives in
// realtime_events_cache before PurgeExpiredEvents removes it.
const durableRetention = 24 * time.Hour

// Sweeper periodically purges expired durable events and catch-up ring
// entries. It is a distinct suture.Service from Bus itself so a sweep
// failure never interrupts the consumer loop.
type Sweeper struct {
	bus *Bus
}

// NewSweeper builds a Sweeper over bus.
func NewSweeper(bus *Bus) *Sweeper {
	return &Sweeper{bus: bus}
}

// String implements fmt.Stringer for suture's logging.
func (s *Sweeper) String() string {
	return "event-bus-sweeper"
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-durableRetention)
	purged, err := s.bus.store.PurgeExpiredEvents(ctx, cutoff)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to purge expired events")
	} else if purged > 0 {
		logging.Info().Int64("purged", purged).Msg("purged expired durable events")
	}

	evicted := s.bus.catchUp.cleanup()
	if evicted > 0 {
		logging.Debug().Int("evicted", evicted).Msg("evicted expired catch-up ring entries")
	}
}
