// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"github.com/tomtom215/fleetd/internal/cache"
	"github.com/tomtom215/fleetd/internal/config"
)

// dedup is the producer-side (subscription_key, change_hash) window: an
// event whose hash matches the last one seen for its key within the
// window is a duplicate and is discarded before it ever reaches
// persistence or fan-out. It is keyed on the same cache.Ring primitive
// the Device Client's own caches use, generalized here to hold a hash
// string instead of a timestamp.
type dedup struct {
	ring *cache.Ring[string]
}

// newDedup builds the dedup window from DetectorConfig, which sizes the
// dedup window for the whole change-detection pipeline: the Change
// Detector itself is a stateless diff (see internal/detector), so this
// is the one stateful consumer of that capacity/TTL pair.
func newDedup(cfg config.DetectorConfig) *dedup {
	return &dedup{ring: cache.NewRing[string](cfg.DedupWindowCapacity, cfg.DedupWindowTTL)}
}

// seen reports whether (key, hash) was already observed within the
// window, and records hash against key regardless of the outcome so the
// window always reflects the most recently seen hash.
func (d *dedup) seen(key, hash string) bool {
	prev, ok := d.ring.Get(key)
	d.ring.Put(key, hash)
	return ok && prev == hash
}
