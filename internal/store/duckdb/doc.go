// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package duckdb is the concrete store.Store adapter backed by an
embedded DuckDB file.

Schema. Six tables: devices (the roster the Tiered Poller reconciles
against), device_states, publisher_states, recorder_states,
device_identity, system_status (append-only), and
realtime_events_cache with its TTL-sweep and catch-up indexes. All
tables are created on New with CREATE TABLE IF NOT EXISTS, so startup
is idempotent against an existing database file.

Upserts use ON CONFLICT (...) DO UPDATE SET col = EXCLUDED.col on each
table's natural key, matching how the rest of this system avoids
read-modify-write races: the device reports the full current value on
every poll, so the database only ever needs the latest one.

Close forces a CHECKPOINT before closing the underlying connection, to
flush the WAL to the main database file; skipping this step and
relying on WAL replay alone can leave DuckDB unable to reopen a
database file that was last written to during a batch of upserts.
*/
package duckdb
