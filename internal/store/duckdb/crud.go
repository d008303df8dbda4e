// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetd/internal/models"
	"github.com/tomtom215/fleetd/internal/store"
)

// ListDevices returns the full device roster ordered by id, used by
// the Tiered Poller's periodic reconciliation sweep.
func (db *DB) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, address, username, secret, COALESCE(name, ''), created_at, updated_at
		FROM devices
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Address, &d.Username, &d.Secret, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.Secret = db.decryptSecret(d.Secret)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return out, nil
}

// GetDevice returns a single device by id. Returns store.ErrNotFound if
// no row exists for deviceID.
func (db *DB) GetDevice(ctx context.Context, deviceID int64) (models.Device, error) {
	var d models.Device
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, address, username, secret, COALESCE(name, ''), created_at, updated_at
		FROM devices
		WHERE id = ?`, deviceID)
	if err := row.Scan(&d.ID, &d.Address, &d.Username, &d.Secret, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Device{}, store.ErrNotFound
		}
		return models.Device{}, fmt.Errorf("querying device %d: %w", deviceID, err)
	}
	d.Secret = db.decryptSecret(d.Secret)
	return d, nil
}

// UpsertDeviceState writes the canonical per-device health row on the
// device_id natural key.
func (db *DB) UpsertDeviceState(ctx context.Context, state models.DeviceState) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO device_states (device_id, status, error_count, last_seen, channels_data, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (device_id) DO UPDATE SET
				status = EXCLUDED.status,
				error_count = EXCLUDED.error_count,
				last_seen = EXCLUDED.last_seen,
				channels_data = EXCLUDED.channels_data,
				updated_at = EXCLUDED.updated_at`,
			state.DeviceID, state.Status, state.ErrorCount, state.LastSeen, state.ChannelsData, state.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upserting device state: %w", err)
		}
		return nil
	})
}

// GetDeviceState reads back the last-persisted row for deviceID, used
// by a newly spawned poller loop to seed its first snapshot.
func (db *DB) GetDeviceState(ctx context.Context, deviceID int64) (models.DeviceState, error) {
	var state models.DeviceState
	row := db.conn.QueryRowContext(ctx, `
		SELECT device_id, status, error_count, last_seen, channels_data, updated_at
		FROM device_states
		WHERE device_id = ?`, deviceID)

	err := row.Scan(&state.DeviceID, &state.Status, &state.ErrorCount, &state.LastSeen, &state.ChannelsData, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeviceState{}, store.ErrNotFound
	}
	if err != nil {
		return models.DeviceState{}, fmt.Errorf("reading device state: %w", err)
	}
	return state, nil
}

// UpsertPublisherState writes one publisher_states row on the natural
// key (device_id, channel_id, publisher_id).
func (db *DB) UpsertPublisherState(ctx context.Context, row store.PublisherStateRow) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO publisher_states (
				device_id, channel_id, publisher_id, name, type,
				is_configured, started, state, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (device_id, channel_id, publisher_id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				is_configured = EXCLUDED.is_configured,
				started = EXCLUDED.started,
				state = EXCLUDED.state,
				last_updated = EXCLUDED.last_updated`,
			row.DeviceID, row.ChannelID, row.PublisherID, row.Name, row.Type,
			row.IsConfigured, row.Started, string(row.State), row.LastUpdated)
		if err != nil {
			return fmt.Errorf("upserting publisher state: %w", err)
		}
		return nil
	})
}

// UpsertRecorderState writes one recorder_states row on the natural
// key (device_id, recorder_id).
func (db *DB) UpsertRecorderState(ctx context.Context, row store.RecorderStateRow) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO recorder_states (
				device_id, recorder_id, name, state, description,
				duration, active, total, multisource, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (device_id, recorder_id) DO UPDATE SET
				name = EXCLUDED.name,
				state = EXCLUDED.state,
				description = EXCLUDED.description,
				duration = EXCLUDED.duration,
				active = EXCLUDED.active,
				total = EXCLUDED.total,
				multisource = EXCLUDED.multisource,
				last_updated = EXCLUDED.last_updated`,
			row.DeviceID, row.RecorderID, row.Name, string(row.State), row.Description,
			row.Duration, row.Active, row.Total, row.Multisource, row.LastUpdated)
		if err != nil {
			return fmt.Errorf("upserting recorder state: %w", err)
		}
		return nil
	})
}

// UpsertDeviceIdentity writes the rarely-changing device_identity row.
func (db *DB) UpsertDeviceIdentity(ctx context.Context, row store.DeviceIdentityRow) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `
			INSERT INTO device_identity (device_id, name, location, description, last_updated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (device_id) DO UPDATE SET
				name = EXCLUDED.name,
				location = EXCLUDED.location,
				description = EXCLUDED.description,
				last_updated = EXCLUDED.last_updated`,
			row.DeviceID, row.Name, row.Location, row.Description, row.LastUpdated)
		if err != nil {
			return fmt.Errorf("upserting device identity: %w", err)
		}
		return nil
	})
}

// InsertSystemStatus appends one system_status row; this table is a
// time series and is never upserted.
func (db *DB) InsertSystemStatus(ctx context.Context, status models.SystemStatus) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO system_status (
			device_id, date, uptime, cpuload_percent, cpuload_high,
			cpu_temperature, cpu_temp_threshold
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		status.DeviceID, status.Date, status.Uptime, status.CPULoadPercent, status.CPULoadHigh,
		status.CPUTemperature, status.CPUTempThreshold)
	if err != nil {
		return fmt.Errorf("inserting system status: %w", err)
	}
	return nil
}

// InsertEvent persists one event into realtime_events_cache. Events
// are deduplicated at the producer side by change hash before they
// ever reach here, but the natural key (event_id) is still unique so
// a retried publish is idempotent rather than duplicated.
func (db *DB) InsertEvent(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encoding event data: %w", err)
	}

	var channel, publisher sql.NullInt64
	if event.Channel != nil {
		channel = sql.NullInt64{Int64: int64(*event.Channel), Valid: true}
	}
	if event.Publisher != nil {
		publisher = sql.NullInt64{Int64: int64(*event.Publisher), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO realtime_events_cache (
			event_id, type, device, channel, publisher, data,
			change_hash, event_timestamp, subscription_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, string(event.Type), event.Device, channel, publisher, string(data),
		event.ChangeHash, event.EventTimestamp, event.SubscriptionKey())
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// LatestEvents returns up to limit most recent events for
// subscriptionKey, newest first, for client catch-up on reconnect.
func (db *DB) LatestEvents(ctx context.Context, subscriptionKey string, limit int) ([]models.Event, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT event_id, type, device, channel, publisher, data, change_hash, event_timestamp, created_at
		FROM realtime_events_cache
		WHERE subscription_key = ?
		ORDER BY event_timestamp DESC
		LIMIT ?`, subscriptionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("querying latest events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Event
	for rows.Next() {
		var (
			e                  models.Event
			eventType          string
			channel, publisher sql.NullInt64
			data               string
		)
		if err := rows.Scan(&e.EventID, &eventType, &e.Device, &channel, &publisher, &data, &e.ChangeHash, &e.EventTimestamp, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.Type = models.EventType(eventType)
		if channel.Valid {
			c := int(channel.Int64)
			e.Channel = &c
		}
		if publisher.Valid {
			p := int(publisher.Int64)
			e.Publisher = &p
		}
		var payload any
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("decoding event data: %w", err)
		}
		e.Data = payload
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return out, nil
}

// PurgeExpiredEvents deletes events older than cutoff and reports how
// many rows were removed.
func (db *DB) PurgeExpiredEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM realtime_events_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging expired events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading purge row count: %w", err)
	}
	return n, nil
}
