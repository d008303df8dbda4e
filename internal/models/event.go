// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType enumerates the kinds of change events the poller emits.
type EventType string

const (
	EventTypeDeviceHealth    EventType = "device_health"
	EventTypePublisherStatus EventType = "publisher_status"
	EventTypePublisherNames  EventType = "publisher_names"
	EventTypeRecorderStatus  EventType = "recorder_status"
	EventTypeDeviceChannels  EventType = "device_channels"
	EventTypeSystemIdentity  EventType = "system_identity"
	EventTypeSystemStatus    EventType = "system_status"
)

// Event is the unit the Tiered Poller emits downstream on every tick,
// regardless of whether the Change Detector found a diff. ChangeHash is
// a 32-character content digest used only at the source of truth for
// deduplication; it is never recomputed by consumers.
type Event struct {
	EventID        string    `json:"event_id"`
	Type           EventType `json:"type"`
	Device         int64     `json:"device"`
	Channel        *int      `json:"channel,omitempty"`
	Publisher      *int      `json:"publisher,omitempty"`
	Data           any       `json:"data"`
	ChangeHash     string    `json:"change_hash"`
	EventTimestamp time.Time `json:"event_timestamp"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubscriptionKey returns the canonical fan-out routing string for this
// event: <type>:<device>[:<channel>[:<publisher>]].
func (e *Event) SubscriptionKey() string {
	return BuildSubscriptionKey(e.Type, e.Device, e.Channel, e.Publisher)
}

// BuildSubscriptionKey constructs the canonical subscription key string
// from its components. Channel and publisher are included only when
// non-nil, and publisher is only meaningful when channel is also set.
func BuildSubscriptionKey(eventType EventType, device int64, channel, publisher *int) string {
	var sb strings.Builder
	sb.WriteString(string(eventType))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatInt(device, 10))
	if channel != nil {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(*channel))
		if publisher != nil {
			sb.WriteByte(':')
			sb.WriteString(strconv.Itoa(*publisher))
		}
	}
	return sb.String()
}

// ParseSubscriptionKey splits a subscription key string back into its
// type/device/channel/publisher components. Returns an error if the
// type segment or device segment is malformed.
func ParseSubscriptionKey(key string) (eventType EventType, device int64, channel, publisher *int, err error) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return "", 0, nil, nil, fmt.Errorf("subscription key %q missing device segment", key)
	}

	eventType = EventType(parts[0])

	device, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, nil, nil, fmt.Errorf("subscription key %q has invalid device segment: %w", key, err)
	}

	if len(parts) >= 3 {
		ch, convErr := strconv.Atoi(parts[2])
		if convErr != nil {
			return "", 0, nil, nil, fmt.Errorf("subscription key %q has invalid channel segment: %w", key, convErr)
		}
		channel = &ch
	}

	if len(parts) >= 4 {
		pub, convErr := strconv.Atoi(parts[3])
		if convErr != nil {
			return "", 0, nil, nil, fmt.Errorf("subscription key %q has invalid publisher segment: %w", key, convErr)
		}
		publisher = &pub
	}

	return eventType, device, channel, publisher, nil
}

// ErrorKind is the closed classification the Device Client and Preview
// Image Service both use so failures are reported uniformly regardless
// of which component observed them.
type ErrorKind string

const (
	ErrorKindTransient    ErrorKind = "transient"
	ErrorKindDNS          ErrorKind = "dns"
	ErrorKindUnauthorized ErrorKind = "unauthorized"
	ErrorKindNotFound     ErrorKind = "notFound"
	ErrorKindServerError  ErrorKind = "serverError"
	ErrorKindSchema       ErrorKind = "schema"
	ErrorKindOther        ErrorKind = "other"
)
