// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package models

import "time"

// Device is a network-attached A/V encoder appliance the fleet polls.
// Identity and credentials are immutable after creation; only Name may
// be updated.
type Device struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"` // host:port of the device's HTTP API
	Username  string    `json:"username"`
	Secret    string    `json:"-"` // HTTP Basic auth secret, never serialized
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublisherState is the lifecycle state a publisher reports.
type PublisherState string

const (
	PublisherStateStopped  PublisherState = "stopped"
	PublisherStateStarting PublisherState = "starting"
	PublisherStateStarted  PublisherState = "started"
	PublisherStateStopping PublisherState = "stopping"
)

// Publisher is a streaming sink belonging to a channel, identified by
// (device_id, channel_id, publisher_id), all device-assigned. A device
// may report a publisher whose Name is not yet known; the detector
// tolerates this and merges names as they arrive.
type Publisher struct {
	DeviceID    int64          `json:"device_id"`
	ChannelID   int            `json:"channel_id"`
	PublisherID int            `json:"publisher_id"`
	Name        string         `json:"name,omitempty"` // fetched separately, may lag
	Type        string         `json:"type"`            // sink kind, e.g. RTMP/SRT
	Configured  bool           `json:"configured"`
	Started     bool           `json:"started"`
	State       PublisherState `json:"state"`
}

// Channel belongs to a device, identified by (device_id, channel_id)
// where channel_id is a small positive integer assigned by the device.
// Channels are reported by the device, never user-created.
type Channel struct {
	DeviceID   int64       `json:"device_id"`
	ChannelID  int         `json:"channel_id"`
	Publishers []Publisher `json:"publishers"`
}

// RecorderState is the lifecycle state a recorder reports.
type RecorderState string

const (
	RecorderStateDisabled RecorderState = "disabled"
	RecorderStateStarting RecorderState = "starting"
	RecorderStateStarted  RecorderState = "started"
	RecorderStateStopped  RecorderState = "stopped"
	RecorderStateError    RecorderState = "error"
)

// Recorder belongs to a device (device-wide, not per-channel), identified
// by (device_id, recorder_id).
type Recorder struct {
	DeviceID    int64         `json:"device_id"`
	RecorderID  int           `json:"recorder_id"`
	Name        string        `json:"name"`
	State       RecorderState `json:"state"`
	Duration    int64         `json:"duration"` // seconds
	Active      int           `json:"active"`   // active session count
	Total       int           `json:"total"`    // total session count
	Multisource bool          `json:"multisource"`
}

// SystemIdentity rarely changes: model/name, location, and free-form
// description reported by the device.
type SystemIdentity struct {
	DeviceID    int64  `json:"device_id"`
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// SystemStatus changes on essentially every poll. Date is the device's
// reported wall-clock and is excluded from change-detection comparisons
// since it advances every tick regardless of anything else changing.
type SystemStatus struct {
	DeviceID         int64     `json:"device_id"`
	Date             time.Time `json:"date"` // excluded from Diff
	Uptime           int64     `json:"uptime"` // seconds
	CPULoadPercent   float64   `json:"cpuload_percent"`
	CPULoadHigh      bool      `json:"cpuload_high"`
	CPUTemperature   float64   `json:"cpu_temperature"`
	CPUTempThreshold float64   `json:"cpu_temp_threshold"`
}

// DeviceState is the canonical row persisted per device, mirroring the
// device_states table.
type DeviceState struct {
	DeviceID     int64     `json:"device_id"`
	Status       string    `json:"status"`
	ErrorCount   int       `json:"error_count"`
	LastSeen     time.Time `json:"last_seen"`
	ChannelsData []byte    `json:"channels_data"` // serialized []Channel snapshot
	UpdatedAt    time.Time `json:"updated_at"`
}
