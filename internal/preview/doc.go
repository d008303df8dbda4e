// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package preview implements the Preview Image Service (component E): a
subscription-reference-counted image fetcher with exactly one polling
loop per (device, channel) regardless of how many dashboard viewers are
watching it.

There is no direct teacher analog for this component (cartographus has
no preview/thumbnail concept), so it is grounded on the closest
adjacent patterns already established elsewhere in this repository:

  - One-loop-per-target concurrency, mirrored from internal/poller's
    one-goroutine-per-device design, generalized to key on (device,
    channel) instead of device alone.
  - Error classification, reused directly from
    internal/deviceclient.Classify rather than duplicated.
  - Exponential backoff shape, mirrored from
    internal/poller's fast-tier backoff (nextFastInterval), adapted to
    the per-(device,channel) granularity and the spec's "delay on
    failure, suppress the loop" semantics rather than the poller's
    "shrink the tick interval" semantics — the two read similarly but
    serve different purposes, which is why no sony/gobreaker/v2 circuit
    breaker sits in front of this path: a breaker trips on request
    *rate*, while this backoff computes a *delay*, and the spec wants
    the delay shape exactly.

Subscription lifecycle: Subscribe increments a target's reference
count, starting its poll loop on first subscriber; Unsubscribe
decrements it, stopping the loop and deleting the cached file the
instant the count reaches zero. GetImage always returns something —
the most recent cached frame, or a tiny synthetic placeholder — so a
dashboard never blocks or errors on a miss.

A background Sweeper, a distinct suture.Service, periodically deletes
cached files older than MaxAge and prunes empty device directories,
independent of any subscription's lifecycle — this bounds disk use even
if a Delete-on-unsubscribe is ever missed (e.g. a crash between the
decrement and the file removal).
*/
package preview
