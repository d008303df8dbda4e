// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fleetd/internal/detector"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/models"
)

// EventSink is the ingestion boundary a tick submits its events to,
// regardless of the change detector's verdict. The Event Store
// (internal/eventbus) is the only production implementation; tests
// substitute a recording stub.
type EventSink interface {
	Submit(ctx context.Context, event models.Event) error
}

// emit builds and submits one event for (eventType, device, channel,
// publisher). Submission failures are logged, not returned: a single
// dropped event must never fail the tick or block the next one, since
// the Event Store's own durability (the ring plus its TTL sweep) is
// the layer responsible for catch-up, not the poller.
func emit(ctx context.Context, sink EventSink, eventType models.EventType, deviceID int64, channel, publisher *int, data any) {
	hash, err := detector.ComputeChangeHash(eventType, deviceID, channel, publisher, data)
	if err != nil {
		logging.Warn().Err(err).Str("event_type", string(eventType)).Int64("device", deviceID).Msg("failed to compute change hash, dropping event")
		return
	}

	event := models.Event{
		EventID:        uuid.New().String(),
		Type:           eventType,
		Device:         deviceID,
		Channel:        channel,
		Publisher:      publisher,
		Data:           data,
		ChangeHash:     hash,
		EventTimestamp: time.Now().UTC(),
	}

	if err := sink.Submit(ctx, event); err != nil {
		logging.Warn().Err(err).Str("event_type", string(eventType)).Int64("device", deviceID).Msg("event submission failed")
	}
}

// errf is a small formatting helper used by tick methods to attach
// shape context to an otherwise bare fetch error.
func errf(shape string, err error) error {
	return fmt.Errorf("%s: %w", shape, err)
}
