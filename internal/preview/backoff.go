// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package preview

import (
	"math"
	"time"

	"github.com/tomtom215/fleetd/internal/config"
)

// nextDelay computes the delay before the next fetch attempt given the
// number of consecutive failures so far: base interval while healthy,
// base * multiplier^(failures-1) capped at max once failures > 0. A
// success resets failures to zero, which restores the base interval.
func nextDelay(cfg config.PreviewConfig, consecutiveFailures int64) time.Duration {
	if consecutiveFailures <= 0 {
		return cfg.BackoffInitial
	}

	k := float64(consecutiveFailures - 1)
	delay := float64(cfg.BackoffInitial) * math.Pow(cfg.BackoffMultiplier, k)
	capped := time.Duration(delay)
	if cfg.BackoffMax > 0 && capped > cfg.BackoffMax {
		capped = cfg.BackoffMax
	}
	return capped
}
