// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package detector implements deep structural comparison between a
device's previous and newly polled snapshot for a single (device, tier,
shape), and computes the content digest used to deduplicate events at
the source.

This package has no I/O: it is a pure function over two values plus a
canonicalization step, so the Tiered Poller can call it inline on every
tick without any dependency on the store or the event bus.

# Verdict

Diff returns one of three verdicts:

  - VerdictFirstSeen: no prior snapshot existed
  - VerdictChanged: the canonicalized snapshots differ
  - VerdictUnchanged: the canonicalized snapshots are deep-equal

Canonicalization sorts slices the device may reorder between polls
(publishers within a channel, channels within a device roster) and
strips system_status.date, which advances every tick regardless of
anything else changing and would otherwise mark every tick "changed."

# Change Hash

ComputeChangeHash produces a 32-character hex digest (sha256 truncated
to 16 bytes) over the canonically ordered JSON of the event's
identifying fields plus its data payload. Consumers treat two events
with the same (subscription key, change hash) observed within a short
window as the same event; the hash itself is never recomputed
downstream of the source.

# Usage Example

	verdict := detector.Diff(previousSnapshot, currentSnapshot)
	if verdict == detector.VerdictChanged || verdict == detector.VerdictFirstSeen {
	    store.UpsertDeviceState(ctx, state)
	}
	// Event emission is unconditional regardless of verdict.
	hash := detector.ComputeChangeHash(eventType, device, channel, publisher, data)

# See Also

  - internal/poller: the sole caller, once per tier per tick
  - internal/models: Event.ChangeHash field this package computes
*/
package detector
