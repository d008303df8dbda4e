// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/logging"
)

// chiMiddleware builds the CORS and per-route rate limiting
// middleware factories from SecurityConfig. One instance is shared by
// every route group the router registers.
type chiMiddleware struct {
	cors          func(http.Handler) http.Handler
	defaultLimit  func(http.Handler) http.Handler
	ingestLimit   func(http.Handler) http.Handler
	wsUpgradeLimit func(http.Handler) http.Handler
}

func newChiMiddleware(sec config.SecurityConfig) *chiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   sec.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	reqs := sec.RateLimitReqs
	window := sec.RateLimitWindow
	if reqs <= 0 {
		reqs = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	return &chiMiddleware{
		cors:         corsHandler,
		defaultLimit: httprate.LimitByIP(reqs, window),
		// Ingest accepts third-party collectors and curl-driven writes;
		// give it its own, somewhat more generous, budget independent of
		// the admin surface's limit.
		ingestLimit: httprate.LimitByIP(reqs*2, window),
		// WebSocket upgrades are one-per-connection, long-lived; a
		// tighter per-IP budget still allows reconnect storms room to
		// recover without admitting an unbounded flood of handshakes.
		wsUpgradeLimit: httprate.LimitByIP(30, time.Minute),
	}
}

// requestIDWithLogging wraps chi's RequestID middleware and threads
// the resulting ID into this package's logging context, so every
// Response.Meta.RequestID matches what structured logs for the same
// request carry.
func requestIDWithLogging(next http.Handler) http.Handler {
	chiRequestID := chimiddleware.RequestID(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
			r.Header.Set("X-Request-ID", requestID)
		}
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctx = logging.ContextWithNewCorrelationID(ctx)
		chiRequestID.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeaders adds the small set of headers appropriate for a
// JSON/WebSocket API surface with no HTML responses to protect.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
