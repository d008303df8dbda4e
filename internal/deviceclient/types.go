// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package deviceclient

// envelope is the common wrapper every device API response uses: the
// actual payload lives under "result".
type envelope[T any] struct {
	Result T `json:"result"`
}

// wireChannel is the raw shape returned by GET /channels.
type wireChannel struct {
	ID         int             `json:"id"`
	Publishers []wirePublisher `json:"publishers"`
}

// wirePublisher is the raw shape embedded in GET /channels and returned
// by GET /channels/<c>/publishers/status.
type wirePublisher struct {
	ID     int                 `json:"id"`
	Type   string              `json:"type"`
	Status wirePublisherStatus `json:"status"`
}

type wirePublisherStatus struct {
	State        string `json:"state"`
	Started      bool   `json:"started"`
	IsConfigured bool   `json:"is_configured"`
}

// wireControlResult is the raw shape returned by the start/stop control
// endpoints for publishers and recorders.
type wireControlResult struct {
	Status string `json:"status,omitempty"`
	Result string `json:"result,omitempty"`
}

// OK reports whether the device accepted the control command. Devices
// inconsistently use either "status" or "result" for this, so both are
// checked.
func (w wireControlResult) OK() bool {
	return w.Status == "ok" || w.Result == "ok" || w.Result == "success"
}

// wireRecorder is the raw shape returned by GET /recorders/status.
type wireRecorder struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	Duration    int64  `json:"duration"`
	Active      int    `json:"active"`
	Total       int    `json:"total"`
	Multisource bool   `json:"multisource"`
}

// wireSystemIdentity is the raw shape returned by GET /system/ident.
type wireSystemIdentity struct {
	Name        string `json:"name"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// wireSystemStatus is the raw shape returned by GET /system/status.
type wireSystemStatus struct {
	Date             string  `json:"date"`
	Uptime           int64   `json:"uptime"`
	CPULoadPercent   float64 `json:"cpuload_percent"`
	CPULoadHigh      bool    `json:"cpuload_high"`
	CPUTemperature   float64 `json:"cpu_temperature"`
	CPUTempThreshold float64 `json:"cpu_temp_threshold"`
}

// PreviewOptions parameterizes a channel preview image fetch.
type PreviewOptions struct {
	Resolution      string // e.g. "640x360"; empty uses the device default
	KeepAspectRatio bool
	Format          string // e.g. "jpeg", "png"; empty uses the device default
}

// Preview is the decoded result of a preview image fetch.
type Preview struct {
	ContentType string
	Data        []byte
}
