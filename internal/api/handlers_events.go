// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/fleetd/internal/eventbus"
	"github.com/tomtom215/fleetd/internal/models"
)

// IngestEvent accepts the same event shape the in-process poller
// submits, letting an external collector or an operator's curl inject
// an event without going through a device poll. Schema failures
// return 400; everything past decode/validate is handed to the Bus
// exactly as poller-sourced events are.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req eventbus.IngestRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest("malformed request body: " + err.Error())
		return
	}

	if err := h.validate.Struct(req); err != nil {
		rw.ValidationError(err)
		return
	}

	event, err := h.bus.Ingest(r.Context(), req)
	if err != nil {
		rw.InternalError(err, "failed to ingest event")
		return
	}

	rw.Accepted(event)
}

// LatestEvents serves catch-up replay for a subscription key: up to
// limit most recent events, newest first, for a client that just
// reconnected and wants to backfill what it missed while offline.
func (h *Handler) LatestEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	key := r.URL.Query().Get("key")
	if key == "" {
		rw.BadRequest("missing required query parameter \"key\"")
		return
	}
	if _, _, _, _, err := models.ParseSubscriptionKey(key); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			rw.BadRequest("invalid \"limit\" query parameter")
			return
		}
		limit = parsed
	}

	events, err := h.bus.LatestEvents(r.Context(), key, limit)
	if err != nil {
		rw.InternalError(err, "failed to load catch-up events")
		return
	}

	rw.Success(events)
}
