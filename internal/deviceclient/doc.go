// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package deviceclient talks to the read/control HTTP surface exposed by a
fleet device: channels, publishers, recorders, system identity/status,
and preview image snapshots.

Every response is wrapped in a `result` envelope; doEnvelope[T] unwraps
it generically instead of repeating the pattern per endpoint. A device
that returns 404 on an optional endpoint (publisher name, recorders) is
not an error: the caller gets a synthetic default.

# Resilience

A *Client* is built per device and holds its own sony/gobreaker/v2
circuit breaker, so one wedged device cannot pin goroutines or degrade
requests to any other device. All clients share one http.Transport
(bounded idle connections, shared DNS/TCP reuse).

Every error returned to the caller is classified into models.ErrorKind
so the Tiered Poller and the Preview Image Service report failures
uniformly regardless of which one observed them.

# Usage Example

	pool := deviceclient.NewPool(cfg.DeviceClient)
	client := pool.Client(device)

	channels, err := client.GetChannels(ctx)
	if err != nil {
	    kind := deviceclient.Classify(err)
	    // record metrics, emit an error event, etc.
	}

# Thread Safety

Pool and Client are safe for concurrent use. Each Client serializes
nothing internally beyond what its breaker and http.Client already do.

# See Also

  - internal/poller: the Tiered Poller that is the Device Client's main caller
  - internal/preview: the other consumer of the preview endpoint + ErrorKind
  - internal/models: ErrorKind, Channel, Publisher, Recorder, SystemIdentity, SystemStatus
*/
package deviceclient
