// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package wal

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
)

// Publisher republishes a pending entry's payload under its original
// id. Satisfied by the ingestion transport's publish method; declared
// here to avoid an import cycle back into internal/eventbus.
type Publisher interface {
	Publish(id string, payload []byte) error
}

// RetryLoop is a suture.Service that periodically republishes WAL
// entries still pending confirmation: payloads Submit wrote durably
// but never got a Confirm for, because the ingestion transport was
// unreachable or the process crashed before confirming. On every
// tick, including its first (covering recovery right after a
// restart), it republishes every pending entry once; entries that
// fail again simply remain pending for the next tick.
type RetryLoop struct {
	wal       *WAL
	publisher Publisher
	interval  time.Duration
}

// NewRetryLoop builds a RetryLoop over wal, republishing through pub
// every interval.
func NewRetryLoop(w *WAL, pub Publisher, interval time.Duration) *RetryLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RetryLoop{wal: w, publisher: pub, interval: interval}
}

// String implements fmt.Stringer for suture's logging.
func (r *RetryLoop) String() string {
	return "wal-retry-loop"
}

// Serve implements suture.Service.
func (r *RetryLoop) Serve(ctx context.Context) error {
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *RetryLoop) tick(ctx context.Context) {
	pending, err := r.wal.Pending(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("wal retry loop failed to list pending entries")
		return
	}
	if len(pending) == 0 {
		return
	}

	logging.Info().Int("count", len(pending)).Msg("wal retrying pending entries")
	for _, entry := range pending {
		err := r.publisher.Publish(entry.ID, entry.Payload)
		metrics.RecordWALRetry(err)
		if err != nil {
			logging.Warn().Err(err).Str("entry_id", entry.ID).Int("attempts", entry.Attempts).
				Msg("wal retry publish failed, leaving entry pending")
			if touchErr := r.wal.Touch(entry.ID, err); touchErr != nil && !errors.Is(touchErr, ErrNotFound) {
				logging.Warn().Err(touchErr).Str("entry_id", entry.ID).Msg("wal failed to record retry attempt")
			}
			continue
		}
		if confirmErr := r.wal.Confirm(entry.ID); confirmErr != nil && !errors.Is(confirmErr, ErrNotFound) {
			logging.Warn().Err(confirmErr).Str("entry_id", entry.ID).Msg("wal failed to confirm retried entry")
		}
	}
}
