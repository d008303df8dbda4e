// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fleetd/internal/middleware"
)

// asChiMiddleware adapts a func(http.HandlerFunc) http.HandlerFunc
// instrumentation middleware to chi's func(http.Handler) http.Handler
// convention.
func asChiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// NewRouter builds the chi.Router for the fleet core's entire HTTP
// surface: health/status/metrics, admin force-refresh/clear-cache,
// event ingest, device control proxies, preview subscribe/image, and
// the WebSocket upgrade.
func NewRouter(h *Handler) http.Handler {
	mw := newChiMiddleware(h.cfg.Security)

	r := chi.NewRouter()
	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.cors)
	r.Use(securityHeaders)
	r.Use(asChiMiddleware(middleware.Compression))
	r.Use(asChiMiddleware(middleware.PrometheusMetrics))
	r.Use(h.perf.Middleware)

	r.Route("/health", func(r chi.Router) {
		r.Use(mw.defaultLimit)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
		r.Get("/", h.Health)
	})
	r.With(mw.defaultLimit).Get("/status", h.Status)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(mw.defaultLimit)
		r.Use(requirePermission(h.jwtManager, "admin"))
		r.Post("/force-refresh", h.ForceRefresh)
		r.Post("/clear-cache", h.ClearCache)
		r.Get("/performance", h.PerformanceStats)
	})

	r.Route("/events", func(r chi.Router) {
		r.Use(mw.ingestLimit)
		r.Use(requirePermission(h.jwtManager, "ingest"))
		r.Post("/", h.IngestEvent)
		r.Get("/", h.LatestEvents)
	})

	r.Route("/devices/{device}", func(r chi.Router) {
		r.Use(mw.defaultLimit)
		r.Use(requirePermission(h.jwtManager, "control"))

		r.Post("/channels/{channel}/publishers/{publisher}/control/{action}", h.ControlPublisher)
		r.Post("/recorders/{recorder}/control/{action}", h.ControlRecorder)

		r.Route("/channels/{channel}/preview", func(r chi.Router) {
			r.Post("/subscribe", h.PreviewSubscribe)
			r.Get("/", h.PreviewImage)
		})
	})
	r.With(mw.defaultLimit, requirePermission(h.jwtManager, "control")).
		Delete("/preview/subscriptions/{subscriptionID}", h.PreviewUnsubscribe)

	r.With(mw.wsUpgradeLimit).Get("/ws", h.WebSocket)

	return r
}
