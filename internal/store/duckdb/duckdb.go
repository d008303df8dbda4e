// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/store"
)

// DB is the DuckDB-backed store.Store implementation.
type DB struct {
	conn *sql.DB
	path string

	// secretCipher decrypts models.Device.Secret on read when set. It
	// is nil by default (and in every test that opens an in-memory
	// DB without calling SetSecretCipher), in which case device
	// secrets are stored and returned as plaintext.
	secretCipher *config.CredentialCipher
}

// SetSecretCipher installs a credential cipher used to decrypt
// models.Device.Secret as rows are read back from the devices table.
// The device roster itself is populated outside this binary (by
// whatever provisioning tool seeds the devices table), so the
// expectation is that Secret values are encrypted with the same
// cipher before being written there.
func (db *DB) SetSecretCipher(cipher *config.CredentialCipher) {
	db.secretCipher = cipher
}

// decryptSecret decrypts s using the installed cipher, if any. With no
// cipher installed it returns s unchanged. A decryption failure is
// logged and the raw value is returned rather than failing the whole
// query, since a bad or rotated key should degrade to "this device's
// poll attempts fail auth" rather than "the roster can't be listed."
func (db *DB) decryptSecret(s string) string {
	if db.secretCipher == nil || s == "" {
		return s
	}
	plaintext, err := db.secretCipher.Decrypt(s)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to decrypt device secret, using raw stored value")
		return s
	}
	return plaintext
}

// New opens (creating if absent) the DuckDB file at cfg.Path, applies
// the connection pool settings, and creates the schema if missing.
func New(cfg config.DatabaseConfig) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory,
	)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db := &DB{conn: conn, path: cfg.Path}

	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.initialize(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := db.createTables(ctx); err != nil {
		return err
	}
	if err := db.createIndexes(ctx); err != nil {
		return err
	}

	// CHECKPOINT flushes the WAL after schema creation so a process
	// that opens this file next doesn't need to replay the CREATE
	// TABLE statements.
	checkpointCtx, checkpointCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer checkpointCancel()
	if err := db.Checkpoint(checkpointCtx); err != nil {
		logging.Warn().Err(err).Msg("failed to checkpoint after schema initialization")
	}

	return nil
}

func (db *DB) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id INTEGER PRIMARY KEY,
			address TEXT NOT NULL,
			username TEXT NOT NULL,
			secret TEXT NOT NULL,
			name TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT now(),
			updated_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS device_states (
			device_id INTEGER PRIMARY KEY,
			status TEXT NOT NULL,
			error_count INTEGER NOT NULL DEFAULT 0,
			last_seen TIMESTAMP NOT NULL,
			channels_data BLOB,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS publisher_states (
			device_id INTEGER NOT NULL,
			channel_id INTEGER NOT NULL,
			publisher_id INTEGER NOT NULL,
			name TEXT,
			type TEXT,
			is_configured BOOLEAN NOT NULL DEFAULT false,
			started BOOLEAN NOT NULL DEFAULT false,
			state TEXT NOT NULL,
			last_updated TIMESTAMP NOT NULL,
			PRIMARY KEY (device_id, channel_id, publisher_id)
		)`,
		`CREATE TABLE IF NOT EXISTS recorder_states (
			device_id INTEGER NOT NULL,
			recorder_id INTEGER NOT NULL,
			name TEXT,
			state TEXT NOT NULL,
			description TEXT,
			duration BIGINT NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			multisource BOOLEAN NOT NULL DEFAULT false,
			last_updated TIMESTAMP NOT NULL,
			PRIMARY KEY (device_id, recorder_id)
		)`,
		`CREATE TABLE IF NOT EXISTS device_identity (
			device_id INTEGER PRIMARY KEY,
			name TEXT,
			location TEXT,
			description TEXT,
			last_updated TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS system_status (
			device_id INTEGER NOT NULL,
			date TIMESTAMP NOT NULL,
			uptime BIGINT NOT NULL,
			cpuload_percent DOUBLE NOT NULL,
			cpuload_high BOOLEAN NOT NULL,
			cpu_temperature DOUBLE NOT NULL,
			cpu_temp_threshold DOUBLE NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS realtime_events_cache (
			event_id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			device INTEGER NOT NULL,
			channel INTEGER,
			publisher INTEGER,
			data TEXT NOT NULL,
			change_hash TEXT NOT NULL,
			event_timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT now(),
			subscription_key TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (db *DB) createIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_events_key_time ON realtime_events_cache (subscription_key, event_timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON realtime_events_cache (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_system_status_device_date ON system_status (device_id, date DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing index statement: %w", err)
		}
	}
	return nil
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the underlying connection pool.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to checkpoint database before close")
	}
	return db.conn.Close()
}

// isTransactionConflict reports whether err is a DuckDB transaction
// conflict, which is safe to retry, as opposed to a structural error.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "cannot update a table that has been altered")
}

// withRetry runs fn up to 3 times, backing off 1ms/2ms/4ms between
// attempts, retrying only on transaction conflicts. DuckDB's
// single-writer MVCC model means two concurrent upserts to
// overlapping rows can legitimately conflict; the poller's per-device
// write volume makes a short retry cheaper than serializing all
// writes behind one lock.
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransactionConflict(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		backoff := time.Millisecond * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

var _ store.Store = (*DB)(nil)
