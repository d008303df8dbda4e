// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package detector

import (
	"reflect"
	"sort"
	"time"

	"github.com/tomtom215/fleetd/internal/models"
)

// Verdict is the outcome of comparing a device's previous and current
// snapshot for one (device, tier, shape).
type Verdict int

const (
	VerdictFirstSeen Verdict = iota
	VerdictChanged
	VerdictUnchanged
)

func (v Verdict) String() string {
	switch v {
	case VerdictFirstSeen:
		return "first_seen"
	case VerdictChanged:
		return "changed"
	case VerdictUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Diff compares prev against next for a single shape. prev is an
// untyped nil when the poller holds no prior snapshot for this
// (device, tier, shape), in which case the verdict is always
// VerdictFirstSeen regardless of next.
//
// Both values are canonicalized before comparison: slices the device
// may reorder between polls are sorted by their natural key, and
// system_status.date (which advances every tick) is stripped.
func Diff(prev, next any) Verdict {
	if prev == nil {
		return VerdictFirstSeen
	}

	canonPrev := canonicalize(prev)
	canonNext := canonicalize(next)

	if reflect.DeepEqual(canonPrev, canonNext) {
		return VerdictUnchanged
	}
	return VerdictChanged
}

// canonicalize returns a copy of v with device-reorderable slices
// sorted by natural key and volatile fields stripped, so two
// semantically identical snapshots compare equal regardless of the
// order the device happened to report them in.
func canonicalize(v any) any {
	switch val := v.(type) {
	case []models.Channel:
		return canonicalizeChannels(val)
	case []models.Publisher:
		return canonicalizePublishers(val)
	case []models.Recorder:
		return canonicalizeRecorders(val)
	case models.SystemStatus:
		val.Date = time.Time{}
		return val
	case *models.SystemStatus:
		if val == nil {
			return val
		}
		cp := *val
		cp.Date = time.Time{}
		return cp
	default:
		return v
	}
}

func canonicalizeChannels(in []models.Channel) []models.Channel {
	out := make([]models.Channel, len(in))
	copy(out, in)
	for i := range out {
		out[i].Publishers = canonicalizePublishers(out[i].Publishers)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

func canonicalizePublishers(in []models.Publisher) []models.Publisher {
	if in == nil {
		return nil
	}
	out := make([]models.Publisher, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].PublisherID < out[j].PublisherID })
	return out
}

func canonicalizeRecorders(in []models.Recorder) []models.Recorder {
	if in == nil {
		return nil
	}
	out := make([]models.Recorder, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].RecorderID < out[j].RecorderID })
	return out
}
