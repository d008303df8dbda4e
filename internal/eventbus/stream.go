// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/fleetd/internal/config"
)

// eventsSubject is the single subject every fleetd event is published
// and consumed on. Unlike the teacher's per-media-type topic tree, the
// fleet's event types are few and already carried in the payload, so
// one subject keeps the JetStream stream and its durable consumer
// trivial to reason about.
const eventsSubject = "fleetd.events"

// eventsStreamName names the JetStream stream backing eventsSubject.
const eventsStreamName = "FLEETD_EVENTS"

// ensureStream creates or updates the JetStream stream backing
// eventsSubject so it exists with the configured retention before any
// publisher or subscriber touches it. Idempotent: safe to call on
// every startup.
func ensureStream(ctx context.Context, js jetstream.JetStream, cfg config.NATSConfig) error {
	streamCfg := jetstream.StreamConfig{
		Name:        eventsStreamName,
		Subjects:    []string{eventsSubject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      time.Duration(cfg.StreamRetentionDays) * 24 * time.Hour,
		MaxBytes:    cfg.MaxStore,
		Storage:     jetstream.FileStorage,
		AllowDirect: true,
		Discard:     jetstream.DiscardOld,
	}

	_, err := js.Stream(ctx, eventsStreamName)
	if err == nil {
		_, err = js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return fmt.Errorf("update stream %s: %w", eventsStreamName, err)
		}
		return nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", eventsStreamName, err)
		}
		return nil
	}

	return fmt.Errorf("check stream %s: %w", eventsStreamName, err)
}
