// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"net/http"
	"time"
)

// healthStatus is the payload for GET /health and GET /status.
type healthStatus struct {
	Status      string  `json:"status"`
	UptimeSecs  float64 `json:"uptime_seconds"`
	DBConnected bool    `json:"db_connected"`
	DeviceCount int     `json:"device_count"`
}

// Health reports whether the store is reachable. Status is "healthy"
// when the store answers Ping, "degraded" otherwise; this endpoint
// never returns non-2xx so monitoring tools always get a body to
// parse.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	dbConnected := h.store.Ping(r.Context()) == nil
	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	rw.Success(healthStatus{
		Status:      status,
		UptimeSecs:  time.Since(h.startTime).Seconds(),
		DBConnected: dbConnected,
	})
}

// HealthLive is a Kubernetes-style liveness probe: always 200 while
// the process is alive, independent of any dependency's state.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady is a Kubernetes-style readiness probe: 503 until the
// store is reachable, so a load balancer holds traffic back from an
// instance that can't yet serve requests.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.store.Ping(r.Context()); err != nil {
		rw.ServiceUnavailable("store not reachable")
		return
	}
	rw.Success(map[string]any{"ready": true})
}

// Status is a richer operational snapshot than Health: the device
// roster size alongside the same connectivity check, for an operator
// glancing at the fleet rather than a monitoring probe.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	devices, err := h.store.ListDevices(r.Context())
	if err != nil {
		rw.InternalError(err, "failed to load device roster")
		return
	}

	rw.Success(healthStatus{
		Status:      "healthy",
		UptimeSecs:  time.Since(h.startTime).Seconds(),
		DBConnected: true,
		DeviceCount: len(devices),
	})
}

// PerformanceStats reports the rolling-window latency percentiles the
// performance monitor middleware has accumulated per endpoint, for an
// operator who wants p50/p95/p99 without a Prometheus query.
func (h *Handler) PerformanceStats(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.perf.GetStats())
}
