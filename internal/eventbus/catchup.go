// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"sort"

	"github.com/tomtom215/fleetd/internal/cache"
	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
)

// catchUpLog is the short-lived, in-memory companion to the durable
// realtime_events_cache table: a bounded ring per subscription key that
// a client reconnecting after a brief gap can replay without touching
// the database. Each key's ring entry is itself the bounded slice of
// its most recent events, which lets it sit directly on cache.Ring's
// single-value-per-key shape (see internal/cache.Ring) instead of a
// bespoke multi-value structure.
type catchUpLog struct {
	ring         *cache.Ring[[]models.Event]
	perKeyDepth  int
	defaultLimit int
	maxLimit     int
}

func newCatchUpLog(cfg config.EventBusConfig) *catchUpLog {
	depth := cfg.RingCapacityPerKey
	if depth <= 0 {
		depth = 256
	}
	return &catchUpLog{
		ring:         cache.NewRing[[]models.Event](0, cfg.RingTTL),
		perKeyDepth:  depth,
		defaultLimit: cfg.CatchUpDefaultLimit,
		maxLimit:     cfg.CatchUpMaxLimit,
	}
}

// append records event under its subscription key, evicting the oldest
// entry for that key once perKeyDepth is exceeded.
func (c *catchUpLog) append(event models.Event) {
	key := event.SubscriptionKey()
	events, _ := c.ring.Get(key)
	events = append(events, event)
	if len(events) > c.perKeyDepth {
		evicted := len(events) - c.perKeyDepth
		events = events[evicted:]
		metrics.EventBusRingEvictions.WithLabelValues(key).Add(float64(evicted))
	}
	c.ring.Put(key, events)
	metrics.EventBusRingSize.WithLabelValues(key).Set(float64(len(events)))
}

// latest returns up to limit most recent events for key, newest first.
// A limit of zero or less uses defaultLimit; limits above maxLimit are
// clamped.
func (c *catchUpLog) latest(key string, limit int) []models.Event {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	if limit > c.maxLimit {
		limit = c.maxLimit
	}

	events, ok := c.ring.Get(key)
	if !ok || len(events) == 0 {
		return nil
	}

	out := make([]models.Event, len(events))
	copy(out, events)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EventTimestamp.After(out[j].EventTimestamp)
	})
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}

// cleanup drops expired per-key rings; returns the number removed.
func (c *catchUpLog) cleanup() int {
	return c.ring.CleanupExpired()
}
