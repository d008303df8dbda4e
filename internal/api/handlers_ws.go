// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/fleetd/internal/logging"
	ws "github.com/tomtom215/fleetd/internal/websocket"
)

// checkWebSocketOrigin rejects handshakes with no Origin header and,
// when the server has a configured CORS allowlist, any Origin not on
// it. A wildcard entry opts out of the check entirely.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	allowed := h.cfg.Security.CORSOrigins
	if len(allowed) == 0 {
		return false
	}
	if slices.Contains(allowed, "*") {
		return true
	}
	return slices.Contains(allowed, origin)
}

// clientIP strips the port from r.RemoteAddr (set to the real client
// address by chi's RealIP middleware ahead of this handler), falling
// back to the raw value when it carries no port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
}

// WebSocket upgrades a connection into the fan-out Hub. The bearer
// token travels in the "token" query parameter, since a browser's
// WebSocket API cannot set an Authorization header on the handshake
// request; the resulting claims' subject and permissions are attached
// to the Client for future per-subscription authorization.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.wsHub == nil {
		rw.ServiceUnavailable("websocket hub not initialized")
		return
	}

	token := bearerToken(r)
	if token == "" {
		rw.Unauthorized("missing bearer token")
		return
	}
	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		rw.Unauthorized("invalid or expired token")
		return
	}
	if !claims.HasPermission("subscribe") {
		rw.Forbidden("token lacks the subscribe permission")
		return
	}

	remoteAddr := clientIP(r)
	if !h.wsHub.ReserveConnection(remoteAddr) {
		rw.TooManyRequests("connection limit reached")
		return
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.wsHub.ReleaseConnection(remoteAddr)
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.wsHub, conn, claims.Subject, claims.Permissions, remoteAddr)
	h.wsHub.Register <- client
	client.Start()
}
