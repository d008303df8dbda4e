// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

// Package models defines the data structures shared across the fleet
// telemetry core: devices and the channels/publishers/recorders they
// report, the canonical state rows the store persists, and the events
// that flow from the poller through the event bus to subscribers.
package models
