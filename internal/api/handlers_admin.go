// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tomtom215/fleetd/internal/poller"
)

// deviceIDFromQuery parses the required "device" query parameter
// every admin endpoint in this file takes.
func deviceIDFromQuery(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("device")
	if raw == "" {
		return 0, errors.New("missing required query parameter \"device\"")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ForceRefresh runs every polling tier for a device once, immediately,
// outside its normal tickers. Because tier emission is unconditional,
// the caller is guaranteed an event reflecting the device's current
// snapshot once this returns, regardless of the change detector's
// verdict.
func (h *Handler) ForceRefresh(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	deviceID, err := deviceIDFromQuery(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	if err := h.poller.ForceRefresh(r.Context(), deviceID); err != nil {
		if errors.Is(err, poller.ErrDeviceNotFound) {
			rw.NotFound("device is not currently polled")
			return
		}
		rw.InternalError(err, "force-refresh failed")
		return
	}

	rw.Success(map[string]any{"device": deviceID, "refreshed": true})
}

// ClearCache discards a device's in-memory diff snapshots, so its next
// tick re-persists current state even if the device reports no
// change.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	deviceID, err := deviceIDFromQuery(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	if err := h.poller.ClearCache(deviceID); err != nil {
		if errors.Is(err, poller.ErrDeviceNotFound) {
			rw.NotFound("device is not currently polled")
			return
		}
		rw.InternalError(err, "clear-cache failed")
		return
	}

	rw.Success(map[string]any{"device": deviceID, "cleared": true})
}
