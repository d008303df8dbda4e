// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package store defines the abstract canonical-state and event-log
interface the Tiered Poller and Event Store write to and the admin API
reads from. Exactly one concrete adapter ships in this repository,
internal/store/duckdb, but any implementation satisfying Store can
stand in behind it.

Upserts use the natural key of each table (§5 "upsert on the natural
key to avoid contention"); system_status is append-only, matching the
persisted-state shapes in SPEC_FULL.md §6.
*/
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/fleetd/internal/models"
)

// ErrNotFound is returned by read methods when no row exists for the
// requested key, letting callers (e.g. a poller loop seeding its
// first snapshot) distinguish "no prior state" from a real failure.
var ErrNotFound = errors.New("store: not found")

// PublisherStateRow is the canonical row for publisher_states, keyed
// by (device_id, channel_id, publisher_id).
type PublisherStateRow struct {
	DeviceID     int64
	ChannelID    int
	PublisherID  int
	Name         string
	Type         string
	IsConfigured bool
	Started      bool
	State        models.PublisherState
	LastUpdated  time.Time
}

// RecorderStateRow is the canonical row for recorder_states, keyed by
// (device_id, recorder_id).
type RecorderStateRow struct {
	DeviceID    int64
	RecorderID  int
	Name        string
	State       models.RecorderState
	Description string
	Duration    int64
	Active      int
	Total       int
	Multisource bool
	LastUpdated time.Time
}

// DeviceIdentityRow is the canonical row for device_identity, keyed by
// device_id.
type DeviceIdentityRow struct {
	DeviceID    int64
	Name        string
	Location    string
	Description string
	LastUpdated time.Time
}

// Store is the canonical-state and event-log persistence boundary.
// All methods are safe for concurrent use.
type Store interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connection pool.
	Close() error

	// ListDevices returns the current device roster, used by the
	// Tiered Poller's periodic reconciliation sweep.
	ListDevices(ctx context.Context) ([]models.Device, error)
	// GetDevice returns a single device by id, used by the admin API to
	// resolve a device for a control or preview request. Returns
	// ErrNotFound if no such device is in the roster.
	GetDevice(ctx context.Context, deviceID int64) (models.Device, error)

	// UpsertDeviceState writes the canonical per-device health row.
	UpsertDeviceState(ctx context.Context, state models.DeviceState) error
	// GetDeviceState reads back the last-persisted row for device, used
	// by a newly spawned poller loop to seed its first snapshot.
	GetDeviceState(ctx context.Context, deviceID int64) (models.DeviceState, error)

	// UpsertPublisherState writes one publisher_states row on the
	// natural key (device_id, channel_id, publisher_id).
	UpsertPublisherState(ctx context.Context, row PublisherStateRow) error
	// UpsertRecorderState writes one recorder_states row on the natural
	// key (device_id, recorder_id).
	UpsertRecorderState(ctx context.Context, row RecorderStateRow) error
	// UpsertDeviceIdentity writes the rarely-changing device_identity row.
	UpsertDeviceIdentity(ctx context.Context, row DeviceIdentityRow) error
	// InsertSystemStatus appends one system_status row; this table is
	// append-only, never upserted.
	InsertSystemStatus(ctx context.Context, status models.SystemStatus) error

	// InsertEvent persists one event into realtime_events_cache,
	// assigning CreatedAt. Callers that already deduplicated at the
	// producer side (the in-memory ring) still call this for catch-up
	// durability; duplicate (key, change_hash) pairs are idempotent.
	InsertEvent(ctx context.Context, event models.Event) error
	// LatestEvents returns up to limit most recent events for
	// subscriptionKey, newest first, for client catch-up on reconnect.
	LatestEvents(ctx context.Context, subscriptionKey string, limit int) ([]models.Event, error)
	// PurgeExpiredEvents deletes events older than cutoff and reports
	// how many rows were removed.
	PurgeExpiredEvents(ctx context.Context, cutoff time.Time) (int64, error)
}
