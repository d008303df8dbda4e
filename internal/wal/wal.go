// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

// Package wal provides a durable write-ahead log in front of the Event
// Store's ingestion transport: an ingested event is persisted to
// BadgerDB before it is handed to NATS, so a transport outage or a
// process crash between Write and publish never silently drops an
// event. A background retry loop (see retry.go) republishes anything
// still pending on the next tick or after a restart.
package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
)

// ErrClosed is returned by every WAL method once Close has run.
var ErrClosed = errors.New("wal: closed")

// ErrNotFound is returned by Confirm and Touch when entryID names no
// pending entry, e.g. it was already confirmed by a concurrent call.
var ErrNotFound = errors.New("wal: entry not found")

const pendingPrefix = "pending:"

// Entry is one durable record: an event payload plus the bookkeeping
// the retry loop needs to decide whether, and how hard, to retry it.
type Entry struct {
	ID            string    `json:"id"`
	Payload       []byte    `json:"payload"`
	CreatedAt     time.Time `json:"created_at"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

// Config configures the BadgerDB-backed WAL.
type Config struct {
	// Path is the BadgerDB directory. Created if absent.
	Path string
	// SyncWrites fsyncs every write; durability at the cost of latency.
	SyncWrites bool
}

// WAL is a durable, crash-safe pending-entry log backed by an embedded
// BadgerDB instance.
type WAL struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if absent) the BadgerDB database at cfg.Path.
func Open(cfg Config) (*WAL, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger wal at %s: %w", cfg.Path, err)
	}

	logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("wal opened")
	return &WAL{db: db}, nil
}

// Write durably persists id/payload as a pending entry. Call before
// handing the same payload to the ingestion transport.
func (w *WAL) Write(id string, payload []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	entry := Entry{ID: id, Payload: payload, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal wal entry %s: %w", id, err)
	}

	err = w.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(pendingPrefix+id), data)
	})
	if err != nil {
		return fmt.Errorf("write wal entry %s: %w", id, err)
	}
	metrics.RecordWALWrite()
	return nil
}

// Confirm deletes a pending entry after its payload has been
// successfully published. A missing key (already confirmed by a
// concurrent caller, e.g. the retry loop racing Submit) is not an
// error from the caller's perspective once id is gone either way, so
// only report ErrNotFound when the key truly never existed.
func (w *WAL) Confirm(id string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	key := []byte(pendingPrefix + id)
	err := w.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return err
	}
	metrics.RecordWALConfirm()
	return nil
}

// Touch records a failed republish attempt against id: bumps Attempts
// and stamps LastAttemptAt/LastError, without removing the entry.
func (w *WAL) Touch(id string, attemptErr error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	key := []byte(pendingPrefix + id)
	return w.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}

		var entry Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		}); err != nil {
			return fmt.Errorf("unmarshal wal entry %s: %w", id, err)
		}

		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		if attemptErr != nil {
			entry.LastError = attemptErr.Error()
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal wal entry %s: %w", id, err)
		}
		return txn.Set(key, data)
	})
}

// Pending returns every entry still awaiting confirmation, oldest
// write order is not guaranteed since BadgerDB iterates by key.
func (w *WAL) Pending(ctx context.Context) ([]*Entry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil, ErrClosed
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(pendingPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("wal failed to unmarshal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.WALPending.Set(float64(len(entries)))
	return entries, nil
}

// Close releases the underlying BadgerDB handle. Safe to call once.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}
