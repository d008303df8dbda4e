// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package poller runs the per-device tiered polling loop: three
independent cooperative tasks (fast/medium/slow) sharing one device's
deviceclient.Client and store.Store.

Tiers.

  - Fast (default 1s): publisher status for every known channel and
    recorder status; writes publisher_states/recorder_states gated by
    the change detector, and always refreshes the device's liveness
    row in device_states.
  - Medium (default 15s): the channel list and, for every publisher
    discovered on it, its human-assigned name; writes device_states'
    channels blob and the name fields of publisher_states.
  - Slow (default 30s): system identity and system status; writes
    device_identity only on change (identity rarely changes) and
    appends to system_status unconditionally, since it is a time
    series.

Decoupled fan-out. Every tick submits an event to the configured
EventSink regardless of whether the change detector found a diff —
late subscribers need live truth on reconnect even when nothing
changed, which is why the database write and the event submission are
gated independently.

Scheduling. Each tier runs its own ticker; if a tick is still running
when its ticker fires again, the new tick is skipped rather than
queued. A per-device consecutive-error counter drives the fast tier
into exponential backoff once it crosses PollerConfig.ErrorThreshold;
the medium and slow tiers log failures and continue on their normal
cadence, since their data is not needed to tell whether the device
itself is reachable.

Reconciliation. Poller.Reconcile is itself a supervised service: on
PollerConfig.ReconciliationInterval it reloads the device roster from
the store and starts/stops device loops to match, via the caller's
*supervisor.SupervisorTree.
*/
package poller
