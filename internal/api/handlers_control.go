// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/store"
)

// resolveDevice loads the device a control or preview request names
// in its path, translating store.ErrNotFound into a 404 response.
func (h *Handler) resolveDevice(w http.ResponseWriter, r *http.Request) (*deviceclient.Client, int64, bool) {
	rw := NewResponseWriter(w, r)

	deviceID, err := strconv.ParseInt(chi.URLParam(r, "device"), 10, 64)
	if err != nil {
		rw.BadRequest("invalid device id")
		return nil, 0, false
	}

	device, err := h.store.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("unknown device")
		} else {
			rw.InternalError(err, "failed to load device")
		}
		return nil, 0, false
	}

	return h.pool.Client(device), deviceID, true
}

func parseControlAction(r *http.Request) (deviceclient.ControlAction, bool) {
	switch chi.URLParam(r, "action") {
	case "start":
		return deviceclient.ControlStart, true
	case "stop":
		return deviceclient.ControlStop, true
	default:
		return "", false
	}
}

// ControlPublisher proxies a publisher start/stop command to the
// device. Success here means the device accepted the command, not
// that the publisher has necessarily reached the requested state; the
// poller's next fast tick reports the device's own view of that.
func (h *Handler) ControlPublisher(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	client, deviceID, ok := h.resolveDevice(w, r)
	if !ok {
		return
	}
	action, ok := parseControlAction(r)
	if !ok {
		rw.BadRequest("action must be \"start\" or \"stop\"")
		return
	}
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		rw.BadRequest("invalid channel id")
		return
	}
	publisher, err := strconv.Atoi(chi.URLParam(r, "publisher"))
	if err != nil {
		rw.BadRequest("invalid publisher id")
		return
	}

	if err := client.ControlPublisher(r.Context(), channel, publisher, action); err != nil {
		rw.DeviceError(deviceID, err, string(deviceclient.Classify(err)))
		return
	}

	rw.Success(map[string]any{"device": deviceID, "channel": channel, "publisher": publisher, "action": action})
}

// ControlRecorder proxies a recorder start/stop command to the device.
func (h *Handler) ControlRecorder(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	client, deviceID, ok := h.resolveDevice(w, r)
	if !ok {
		return
	}
	action, ok := parseControlAction(r)
	if !ok {
		rw.BadRequest("action must be \"start\" or \"stop\"")
		return
	}
	recorder, err := strconv.Atoi(chi.URLParam(r, "recorder"))
	if err != nil {
		rw.BadRequest("invalid recorder id")
		return
	}

	if err := client.ControlRecorder(r.Context(), recorder, action); err != nil {
		rw.DeviceError(deviceID, err, string(deviceclient.Classify(err)))
		return
	}

	rw.Success(map[string]any{"device": deviceID, "recorder": recorder, "action": action})
}
