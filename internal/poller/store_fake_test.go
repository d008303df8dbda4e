// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/fleetd/internal/models"
	"github.com/tomtom215/fleetd/internal/store"
)

// fakeStore is an in-memory store.Store substitute for poller tests.
type fakeStore struct {
	mu sync.Mutex

	devices       []models.Device
	deviceStates  map[int64]models.DeviceState
	publisherRows []store.PublisherStateRow
	recorderRows  []store.RecorderStateRow
	identityRows  []store.DeviceIdentityRow
	systemStatus  []models.SystemStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{deviceStates: make(map[int64]models.DeviceState)}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func (f *fakeStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Device(nil), f.devices...), nil
}

func (f *fakeStore) GetDevice(ctx context.Context, deviceID int64) (models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.ID == deviceID {
			return d, nil
		}
	}
	return models.Device{}, store.ErrNotFound
}

func (f *fakeStore) UpsertDeviceState(ctx context.Context, state models.DeviceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceStates[state.DeviceID] = state
	return nil
}

func (f *fakeStore) GetDeviceState(ctx context.Context, deviceID int64) (models.DeviceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.deviceStates[deviceID]
	if !ok {
		return models.DeviceState{}, store.ErrNotFound
	}
	return state, nil
}

func (f *fakeStore) UpsertPublisherState(ctx context.Context, row store.PublisherStateRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publisherRows = append(f.publisherRows, row)
	return nil
}

func (f *fakeStore) UpsertRecorderState(ctx context.Context, row store.RecorderStateRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorderRows = append(f.recorderRows, row)
	return nil
}

func (f *fakeStore) UpsertDeviceIdentity(ctx context.Context, row store.DeviceIdentityRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identityRows = append(f.identityRows, row)
	return nil
}

func (f *fakeStore) InsertSystemStatus(ctx context.Context, status models.SystemStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemStatus = append(f.systemStatus, status)
	return nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, event models.Event) error { return nil }

func (f *fakeStore) LatestEvents(ctx context.Context, subscriptionKey string, limit int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeStore) PurgeExpiredEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeSink records every event submitted to it, for assertions, without
// touching the real Event Store.
type fakeSink struct {
	mu     sync.Mutex
	events []models.Event
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func (f *fakeSink) Submit(ctx context.Context, event models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}
