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

// previewRequest is the body PreviewSubscribe accepts. Resolution and
// Format are optional; an empty value means "device default" all the
// way down to deviceclient.PreviewOptions.
type previewRequest struct {
	Resolution      string `json:"resolution,omitempty"`
	KeepAspectRatio bool   `json:"keep_aspect_ratio,omitempty"`
	Format          string `json:"format,omitempty" validate:"omitempty,oneof=jpeg png"`
}

// PreviewSubscribe registers the caller's interest in a device/channel
// preview feed. If no target is currently polling that (device,
// channel), the first subscriber's request starts it; the response
// reports whether this call was the one that did so.
func (h *Handler) PreviewSubscribe(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	deviceID, err := strconv.ParseInt(chi.URLParam(r, "device"), 10, 64)
	if err != nil {
		rw.BadRequest("invalid device id")
		return
	}
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		rw.BadRequest("invalid channel id")
		return
	}

	device, err := h.store.GetDevice(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("unknown device")
		} else {
			rw.InternalError(err, "failed to load device")
		}
		return
	}

	var req previewRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			rw.BadRequest("malformed request body: " + err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			rw.ValidationError(err)
			return
		}
	}

	clientHint := claimsSubject(r)
	sub, count, isFirst, err := h.preview.Subscribe(device, channel, deviceclient.PreviewOptions{
		Resolution:      req.Resolution,
		KeepAspectRatio: req.KeepAspectRatio,
		Format:          req.Format,
	}, clientHint)
	if err != nil {
		rw.ServiceUnavailable("preview service is not running")
		return
	}

	rw.Created(map[string]any{
		"subscription_id": sub.ID,
		"subscriber_count": count,
		"started_target":   isFirst,
	})
}

// PreviewUnsubscribe releases a subscription id obtained from
// PreviewSubscribe. Once the last subscriber for a (device, channel)
// leaves, its poll target stops and its cached frame is deleted.
func (h *Handler) PreviewUnsubscribe(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	subscriptionID := chi.URLParam(r, "subscriptionID")
	if err := h.preview.Unsubscribe(subscriptionID); err != nil {
		rw.NotFound(err.Error())
		return
	}
	rw.NoContent()
}

// PreviewImage serves the most recently cached frame for a device's
// channel, or a placeholder image if no target is running or nothing
// has been fetched yet. A failed-fetch diagnostic, if any, rides along
// as a response header rather than changing the status code: the
// placeholder is still a valid, servable image.
func (h *Handler) PreviewImage(w http.ResponseWriter, r *http.Request) {
	deviceID, err := strconv.ParseInt(chi.URLParam(r, "device"), 10, 64)
	if err != nil {
		NewResponseWriter(w, r).BadRequest("invalid device id")
		return
	}
	channel, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil {
		NewResponseWriter(w, r).BadRequest("invalid channel id")
		return
	}

	data, contentType, errKind := h.preview.GetImage(deviceID, channel)
	if errKind != "" {
		w.Header().Set("X-Preview-Error-Kind", string(errKind))
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// claimsSubject returns the validated token subject for the request,
// or "" if no claims were attached (an unauthenticated route, or one
// guarded by a permission check that doesn't require a subject).
func claimsSubject(r *http.Request) string {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Subject
}
