// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package middleware provides the HTTP instrumentation layer wrapped
around every route internal/api registers: gzip compression,
Prometheus request metrics, and rolling-window latency percentiles.
Request ID generation and CORS/rate-limiting live in internal/api
itself, next to the chi router they're built against; this package
holds the instrumentation that has no dependency on chi and can wrap
any http.HandlerFunc.

Key Components:

  - Compression: gzip compression for responses, skipped for
    WebSocket upgrades
  - PrometheusMetrics: active-request gauge and request/duration
    histogram recording via internal/metrics
  - PerformanceMonitor: an in-process rolling window of per-endpoint
    latency, exposed as p50/p95/p99 for an operator's admin view
    without needing a Prometheus query

Middleware Stack:

internal/api/router.go applies these, outermost first:

	r.Use(requestIDWithLogging)     // internal/api: request/correlation IDs
	r.Use(middleware.Compression)   // this package: gzip the response body
	r.Use(middleware.PrometheusMetrics) // this package: record duration+status
	r.Use(perfMonitor.Middleware)   // this package: rolling percentile window

Thread Safety:

All three components are safe for concurrent use: Compression pools
its gzip.Writer values, PrometheusMetrics delegates to internal/metrics'
already-concurrent-safe recorders, and PerformanceMonitor guards its
sliding window with sync.RWMutex.

See Also:

  - internal/api: chi router and handlers this package wraps
  - internal/metrics: the Prometheus collectors PrometheusMetrics feeds
*/
package middleware
