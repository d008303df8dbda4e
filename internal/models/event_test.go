// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package models

import "testing"

func TestBuildSubscriptionKey(t *testing.T) {
	ch := 2
	pub := 5

	tests := []struct {
		name      string
		eventType EventType
		device    int64
		channel   *int
		publisher *int
		want      string
	}{
		{name: "device only", eventType: EventTypeDeviceHealth, device: 1, want: "device_health:1"},
		{name: "device and channel", eventType: EventTypePublisherNames, device: 1, channel: &ch, want: "publisher_names:1:2"},
		{name: "device channel publisher", eventType: EventTypePublisherStatus, device: 1, channel: &ch, publisher: &pub, want: "publisher_status:1:2:5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSubscriptionKey(tt.eventType, tt.device, tt.channel, tt.publisher)
			if got != tt.want {
				t.Errorf("BuildSubscriptionKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSubscriptionKey(t *testing.T) {
	eventType, device, channel, publisher, err := ParseSubscriptionKey("publisher_status:1:2:5")
	if err != nil {
		t.Fatalf("ParseSubscriptionKey() error = %v", err)
	}
	if eventType != EventTypePublisherStatus {
		t.Errorf("eventType = %v, want %v", eventType, EventTypePublisherStatus)
	}
	if device != 1 {
		t.Errorf("device = %v, want 1", device)
	}
	if channel == nil || *channel != 2 {
		t.Errorf("channel = %v, want 2", channel)
	}
	if publisher == nil || *publisher != 5 {
		t.Errorf("publisher = %v, want 5", publisher)
	}
}

func TestParseSubscriptionKey_DeviceOnly(t *testing.T) {
	eventType, device, channel, publisher, err := ParseSubscriptionKey("device_health:42")
	if err != nil {
		t.Fatalf("ParseSubscriptionKey() error = %v", err)
	}
	if eventType != EventTypeDeviceHealth || device != 42 {
		t.Errorf("got type=%v device=%v", eventType, device)
	}
	if channel != nil || publisher != nil {
		t.Errorf("expected nil channel/publisher, got %v %v", channel, publisher)
	}
}

func TestParseSubscriptionKey_Invalid(t *testing.T) {
	tests := []string{
		"device_health",
		"device_health:not-a-number",
		"device_health:1:not-a-number",
		"device_health:1:2:not-a-number",
	}

	for _, key := range tests {
		if _, _, _, _, err := ParseSubscriptionKey(key); err == nil {
			t.Errorf("ParseSubscriptionKey(%q) expected error, got nil", key)
		}
	}
}

func TestEvent_SubscriptionKey(t *testing.T) {
	ch := 3
	e := &Event{Type: EventTypeDeviceChannels, Device: 7, Channel: &ch}
	want := "device_channels:7:3"
	if got := e.SubscriptionKey(); got != want {
		t.Errorf("SubscriptionKey() = %q, want %q", got, want)
	}
}

func TestBuildParseSubscriptionKey_RoundTrip(t *testing.T) {
	ch := 4
	pub := 9
	key := BuildSubscriptionKey(EventTypeRecorderStatus, 11, &ch, &pub)

	eventType, device, channel, publisher, err := ParseSubscriptionKey(key)
	if err != nil {
		t.Fatalf("ParseSubscriptionKey() error = %v", err)
	}
	if eventType != EventTypeRecorderStatus || device != 11 || *channel != ch || *publisher != pub {
		t.Errorf("round trip mismatch: type=%v device=%v channel=%v publisher=%v", eventType, device, channel, publisher)
	}
}
