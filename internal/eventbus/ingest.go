// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fleetd/internal/detector"
	"github.com/tomtom215/fleetd/internal/models"
)

// IngestRequest is the wire shape accepted by internal/api's POST
// /events admin endpoint: the same ingestion contract a third-party
// collector, or an operator's curl, uses to inject an event without
// going through the in-process Poller. The Bus itself never decodes
// this shape; the in-process producer (internal/poller) calls Submit
// directly with an already-built models.Event.
type IngestRequest struct {
	Type      models.EventType `json:"type" validate:"required"`
	Device    int64            `json:"device" validate:"required"`
	Channel   *int             `json:"channel,omitempty"`
	Publisher *int             `json:"publisher,omitempty"`
	Data      any              `json:"data" validate:"required"`

	// SourceAddress is the network address of the device or collector
	// that produced this event. The in-process Poller leaves it blank,
	// since it already trusts models.Device.Address for the device it
	// just polled; a third-party collector submitting on a device's
	// behalf sets it so the ingest path can reject spoofed or malformed
	// device addresses before they reach storage.
	SourceAddress string `json:"source_address,omitempty" validate:"omitempty,ipv4strict"`
}

// BuildEvent converts req into a models.Event with a freshly assigned
// EventID and change hash, ready for Submit.
func (req IngestRequest) BuildEvent() (models.Event, error) {
	hash, err := detector.ComputeChangeHash(req.Type, req.Device, req.Channel, req.Publisher, req.Data)
	if err != nil {
		return models.Event{}, fmt.Errorf("compute change hash: %w", err)
	}

	return models.Event{
		EventID:        uuid.New().String(),
		Type:           req.Type,
		Device:         req.Device,
		Channel:        req.Channel,
		Publisher:      req.Publisher,
		Data:           req.Data,
		ChangeHash:     hash,
		EventTimestamp: time.Now().UTC(),
	}, nil
}

// Ingest builds an event from req and submits it to the Bus. Returns
// the assigned event for the caller to echo back in a response body.
func (b *Bus) Ingest(ctx context.Context, req IngestRequest) (models.Event, error) {
	event, err := req.BuildEvent()
	if err != nil {
		return models.Event{}, err
	}
	if err := b.Submit(ctx, event); err != nil {
		return models.Event{}, fmt.Errorf("submit ingested event: %w", err)
	}
	return event, nil
}
