// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package detector

import (
	"testing"
	"time"

	"github.com/tomtom215/fleetd/internal/models"
)

func intp(i int) *int { return &i }

func TestDiff_FirstSeen(t *testing.T) {
	got := Diff(nil, []models.Publisher{{PublisherID: 1}})
	if got != VerdictFirstSeen {
		t.Errorf("Diff(nil, ...) = %v, want %v", got, VerdictFirstSeen)
	}
}

func TestDiff_Unchanged(t *testing.T) {
	prev := []models.Publisher{{PublisherID: 1, Name: "a"}, {PublisherID: 2, Name: "b"}}
	next := []models.Publisher{{PublisherID: 2, Name: "b"}, {PublisherID: 1, Name: "a"}}

	got := Diff(prev, next)
	if got != VerdictUnchanged {
		t.Errorf("Diff(reordered identical) = %v, want %v", got, VerdictUnchanged)
	}
}

func TestDiff_Changed(t *testing.T) {
	prev := []models.Publisher{{PublisherID: 1, Name: "a"}}
	next := []models.Publisher{{PublisherID: 1, Name: "b"}}

	got := Diff(prev, next)
	if got != VerdictChanged {
		t.Errorf("Diff(renamed) = %v, want %v", got, VerdictChanged)
	}
}

func TestDiff_Channels_SortsPublishersWithinChannel(t *testing.T) {
	prev := []models.Channel{
		{ChannelID: 1, Publishers: []models.Publisher{{PublisherID: 2}, {PublisherID: 1}}},
	}
	next := []models.Channel{
		{ChannelID: 1, Publishers: []models.Publisher{{PublisherID: 1}, {PublisherID: 2}}},
	}

	if got := Diff(prev, next); got != VerdictUnchanged {
		t.Errorf("Diff(publishers reordered within channel) = %v, want %v", got, VerdictUnchanged)
	}
}

func TestDiff_Channels_SortsChannelsThemselves(t *testing.T) {
	prev := []models.Channel{{ChannelID: 2}, {ChannelID: 1}}
	next := []models.Channel{{ChannelID: 1}, {ChannelID: 2}}

	if got := Diff(prev, next); got != VerdictUnchanged {
		t.Errorf("Diff(channels reordered) = %v, want %v", got, VerdictUnchanged)
	}
}

func TestDiff_SystemStatus_IgnoresDate(t *testing.T) {
	prev := models.SystemStatus{DeviceID: 1, Date: time.Unix(1000, 0), Uptime: 60, CPULoadPercent: 5}
	next := models.SystemStatus{DeviceID: 1, Date: time.Unix(2000, 0), Uptime: 60, CPULoadPercent: 5}

	if got := Diff(prev, next); got != VerdictUnchanged {
		t.Errorf("Diff(only date differs) = %v, want %v", got, VerdictUnchanged)
	}
}

func TestDiff_SystemStatus_DetectsRealChange(t *testing.T) {
	prev := models.SystemStatus{DeviceID: 1, Date: time.Unix(1000, 0), Uptime: 60, CPULoadPercent: 5}
	next := models.SystemStatus{DeviceID: 1, Date: time.Unix(2000, 0), Uptime: 120, CPULoadPercent: 5}

	if got := Diff(prev, next); got != VerdictChanged {
		t.Errorf("Diff(uptime differs) = %v, want %v", got, VerdictChanged)
	}
}

func TestDiff_SystemStatusPointer(t *testing.T) {
	prev := &models.SystemStatus{DeviceID: 1, Date: time.Unix(1000, 0), CPULoadPercent: 5}
	next := &models.SystemStatus{DeviceID: 1, Date: time.Unix(2000, 0), CPULoadPercent: 5}

	if got := Diff(prev, next); got != VerdictUnchanged {
		t.Errorf("Diff(pointer, only date differs) = %v, want %v", got, VerdictUnchanged)
	}
}

func TestVerdict_String(t *testing.T) {
	cases := map[Verdict]string{
		VerdictFirstSeen: "first_seen",
		VerdictChanged:   "changed",
		VerdictUnchanged: "unchanged",
		Verdict(99):      "unknown",
	}
	for v, want := range cases {
		if got := v.String(); got != want {
			t.Errorf("Verdict(%d).String() = %q, want %q", v, got, want)
		}
	}
}

func TestComputeChangeHash_Deterministic(t *testing.T) {
	data := map[string]any{"state": "started"}

	h1, err := ComputeChangeHash(models.EventTypePublisherStatus, 1, intp(2), intp(3), data)
	if err != nil {
		t.Fatalf("ComputeChangeHash: %v", err)
	}
	h2, err := ComputeChangeHash(models.EventTypePublisherStatus, 1, intp(2), intp(3), data)
	if err != nil {
		t.Fatalf("ComputeChangeHash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 32 {
		t.Errorf("expected 32-character hash, got %d: %q", len(h1), h1)
	}
}

func TestComputeChangeHash_DiffersOnData(t *testing.T) {
	h1, _ := ComputeChangeHash(models.EventTypePublisherStatus, 1, nil, nil, map[string]any{"state": "started"})
	h2, _ := ComputeChangeHash(models.EventTypePublisherStatus, 1, nil, nil, map[string]any{"state": "stopped"})
	if h1 == h2 {
		t.Error("expected different hashes for different data")
	}
}

func TestComputeChangeHash_DiffersOnKey(t *testing.T) {
	data := map[string]any{"state": "started"}
	h1, _ := ComputeChangeHash(models.EventTypePublisherStatus, 1, intp(1), nil, data)
	h2, _ := ComputeChangeHash(models.EventTypePublisherStatus, 2, intp(1), nil, data)
	if h1 == h2 {
		t.Error("expected different hashes for different device")
	}
}
