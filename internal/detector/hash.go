// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package detector

import (
	"crypto/sha256"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetd/internal/models"
)

// changeHashInput is the canonically ordered subset of an event's
// fields that participates in the dedup digest. Field order here is
// fixed by the struct definition, which is what makes the resulting
// JSON encoding stable across calls.
type changeHashInput struct {
	Type      models.EventType `json:"type"`
	Device    int64            `json:"device"`
	Channel   *int             `json:"channel,omitempty"`
	Publisher *int             `json:"publisher,omitempty"`
	Data      any              `json:"data"`
}

// ComputeChangeHash produces the 32-character hex content digest used
// to deduplicate events at the source: sha256 over the canonically
// ordered JSON of the event's identity and payload, truncated to 16
// bytes. Truncation is safe here because the digest is a dedup key
// compared within a short producer-side window, not a security
// primitive requiring full collision resistance.
//
// A stdlib non-cryptographic hash (e.g. hash/maphash) was not used
// because it is explicitly not stable across process restarts, and
// this digest is shared with the producer-side dedup window table
// across restarts of the poller.
func ComputeChangeHash(eventType models.EventType, device int64, channel, publisher *int, data any) (string, error) {
	input := changeHashInput{
		Type:      eventType,
		Device:    device,
		Channel:   channel,
		Publisher: publisher,
		Data:      data,
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encoding change hash input: %w", err)
	}

	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("%x", sum[:16]), nil
}
