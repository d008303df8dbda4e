// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/models"
)

// fakeStore is a minimal store.Store stub recording InsertEvent calls.
type fakeStore struct {
	mu        sync.Mutex
	inserted  []models.Event
	insertErr error
}

func (f *fakeStore) InsertEvent(ctx context.Context, event models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, event)
	return nil
}
func (f *fakeStore) LatestEvents(ctx context.Context, key string, limit int) ([]models.Event, error) {
	return nil, nil
}
func (f *fakeStore) PurgeExpiredEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeHub records PublishEvent calls.
type fakeHub struct {
	mu        sync.Mutex
	published []*models.Event
}

func (h *fakeHub) PublishEvent(event *models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, event)
}

func newTestBus(store *fakeStore, hub *fakeHub) *Bus {
	return &Bus{
		cfg:     testEventBusConfig(),
		store:   store,
		hub:     hub,
		dedup:   newDedup(config.DetectorConfig{DedupWindowCapacity: 100, DedupWindowTTL: time.Minute}),
		catchUp: newCatchUpLog(testEventBusConfig()),
	}
}

func makeIngestMessage(t *testing.T, event models.Event) *message.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return message.NewMessage(event.EventID, payload)
}

func TestBus_Handle_PersistsAndFansOut(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	bus := newTestBus(store, hub)

	event := models.Event{
		EventID:        "evt-1",
		Type:           models.EventTypeDeviceHealth,
		Device:         1,
		ChangeHash:     "hash-a",
		EventTimestamp: time.Now().UTC(),
	}
	msg := makeIngestMessage(t, event)

	bus.handle(context.Background(), msg)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "evt-1", store.inserted[0].EventID)
	require.Len(t, hub.published, 1)
	assert.Equal(t, "evt-1", hub.published[0].EventID)
}

func TestBus_Handle_DuplicateHashDiscardedBeforeFanOut(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	bus := newTestBus(store, hub)

	first := models.Event{EventID: "evt-1", Type: models.EventTypeDeviceHealth, Device: 1, ChangeHash: "hash-a", EventTimestamp: time.Now().UTC()}
	second := models.Event{EventID: "evt-2", Type: models.EventTypeDeviceHealth, Device: 1, ChangeHash: "hash-a", EventTimestamp: time.Now().UTC()}

	bus.handle(context.Background(), makeIngestMessage(t, first))
	bus.handle(context.Background(), makeIngestMessage(t, second))

	assert.Len(t, store.inserted, 1, "second identical-hash event must never reach the store")
	assert.Len(t, hub.published, 1, "second identical-hash event must never reach fan-out")
}

func TestBus_Handle_MalformedPayloadDropped(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	bus := newTestBus(store, hub)

	msg := message.NewMessage("bad", []byte("not json"))
	bus.handle(context.Background(), msg)

	assert.Empty(t, store.inserted)
	assert.Empty(t, hub.published)
}

func TestBus_Handle_StoreErrorSkipsFanOut(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("db unavailable")}
	hub := &fakeHub{}
	bus := newTestBus(store, hub)

	event := models.Event{EventID: "evt-1", Type: models.EventTypeDeviceHealth, Device: 1, ChangeHash: "hash-a", EventTimestamp: time.Now().UTC()}
	bus.handle(context.Background(), makeIngestMessage(t, event))

	assert.Empty(t, hub.published, "an event that failed to persist must not fan out")
}

func TestBus_LatestEvents_PrefersInMemoryRing(t *testing.T) {
	store := &fakeStore{}
	hub := &fakeHub{}
	bus := newTestBus(store, hub)

	event := models.Event{EventID: "evt-1", Type: models.EventTypeDeviceHealth, Device: 1, ChangeHash: "hash-a", EventTimestamp: time.Now().UTC()}
	bus.catchUp.append(event)

	events, err := bus.LatestEvents(context.Background(), event.SubscriptionKey(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].EventID)
}

func TestIngestRequest_BuildEvent(t *testing.T) {
	req := IngestRequest{Type: models.EventTypeDeviceHealth, Device: 1, Data: map[string]any{"status": "ok"}}
	event, err := req.BuildEvent()
	require.NoError(t, err)
	assert.NotEmpty(t, event.EventID)
	assert.NotEmpty(t, event.ChangeHash)
	assert.Equal(t, int64(1), event.Device)
}
