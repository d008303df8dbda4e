// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/fleetd/internal/auth"
)

type claimsContextKey struct{}

// bearerToken extracts the token from the Authorization header, or
// from the "token" query parameter for the WebSocket upgrade route
// where browsers cannot set arbitrary headers on the handshake.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			return after
		}
	}
	return r.URL.Query().Get("token")
}

// requirePermission returns middleware that validates the bearer
// token with jwtManager and rejects the request unless the resulting
// claims grant perm. Validated claims are attached to the request
// context for handlers that need the subject for logging.
func requirePermission(jwtManager *auth.JWTManager, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := NewResponseWriter(w, r)

			token := bearerToken(r)
			if token == "" {
				rw.Unauthorized("missing bearer token")
				return
			}

			claims, err := jwtManager.ValidateToken(token)
			if err != nil {
				rw.Unauthorized("invalid or expired token")
				return
			}
			if !claims.HasPermission(perm) {
				rw.Forbidden("token lacks required permission: " + perm)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// claimsFromContext returns the validated claims a requirePermission
// middleware attached, or nil if none were (e.g. an unauthenticated
// route).
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims
}
