// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package cache provides Ring[V], the thread-safe, bounded-capacity,
per-key TTL cache used for deduplication and short-lived catch-up
buffering across the fleet core.

# Overview

Ring[V] is a doubly-linked-list-plus-map LRU, generic over the stored
value: keyed on a producer-chosen string (a subscription key or a
change hash), each key's slot is evicted on capacity pressure or TTL
expiry. The event bus uses two instances of it for two different V:
Ring[string] for the producer-side (subscription_key, change_hash)
dedup window, and Ring[[]models.Event] for the per-subscriber catch-up
log, where each key's single slot holds the whole recent-event slice
rather than one scalar.

# Usage

	dedup := cache.NewRing[string](10000, 2*time.Minute)
	if prev, ok := dedup.Get(subscriptionKey); ok && prev == changeHash {
	    return // already emitted this state
	}
	dedup.Put(subscriptionKey, changeHash)

	catchUp := cache.NewRing[[]models.Event](5000, 30*time.Minute)

# Thread Safety

Ring[V] guards its state with sync.RWMutex and is safe for concurrent
use from multiple goroutines.
*/
package cache
