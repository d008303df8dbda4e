// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements comprehensive application instrumentation using the Prometheus
client library, exposing metrics for monitoring performance, errors, and system health
across every component of the fleet monitoring core.

# Overview

The package provides metrics for:
  - Device client HTTP requests and per-device circuit breaker state (component A)
  - Change detector comparison throughput (component B)
  - Store (DuckDB) query performance
  - Tiered poller tick duration and per-device backoff (component C)
  - Event bus fan-out, catch-up ring occupancy, and ingestion transport lag (component D)
  - Preview image fetch/cache behavior (component E)
  - WebSocket connection counts
  - Admin/ingest API endpoint latency and throughput

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Device Client Metrics:
  - device_requests_total: total HTTP requests issued to devices (counter)
    Labels: endpoint, status_code
  - device_request_duration_seconds: request latency (histogram)
    Labels: endpoint
  - device_request_errors_total: classified request errors (counter)
    Labels: endpoint, error_kind (transient, dns, unauthorized, notFound, serverError, schema, other)

Circuit Breaker Metrics (one breaker per device host):
  - circuit_breaker_state: current state (gauge), 0=closed 1=half-open 2=open
    Labels: device
  - circuit_breaker_requests_total: requests by outcome (counter)
    Labels: device, result (success, failure, rejected)
  - circuit_breaker_state_transitions_total: state transitions (counter)
    Labels: device, from_state, to_state

Change Detector Metrics:
  - detector_comparisons_total: comparisons by data type and outcome (counter)
    Labels: data_type, changed
  - detector_duration_seconds: time spent per comparison (histogram)

Store Metrics:
  - store_query_duration_seconds: query execution time (histogram)
    Labels: operation, table
  - store_query_errors_total: failed queries (counter)
    Labels: operation, table
  - store_connection_pool_size: active connections (gauge)

Tiered Poller Metrics:
  - poller_tick_duration_seconds: tick duration by tier (histogram)
    Labels: tier (fast, medium, slow)
  - poller_ticks_total: ticks by tier and outcome (counter)
    Labels: tier, outcome (success, error)
  - poller_backoff_seconds: current backoff for a device (gauge)
    Labels: device
  - poller_devices_active: devices with an active poller service (gauge)

Event Bus Metrics:
  - eventbus_events_published_total: events published (counter)
    Labels: event_type
  - eventbus_events_fanned_out_total: events delivered to subscribers (counter)
    Labels: event_type
  - eventbus_ring_entries: catch-up ring occupancy (gauge)
    Labels: subscription_key
  - eventbus_ring_evictions_total: ring overflow evictions (counter)
    Labels: subscription_key
  - ingest_messages_consumed_total / _processed_total / _parse_failed_total: ingestion
    transport throughput (counter)
  - ingest_processing_duration_seconds: ingestion handler latency (histogram)
  - ingest_consumer_lag: pending messages on the ingestion consumer (gauge)

Preview Image Metrics:
  - preview_fetch_duration_seconds: fetch latency by result (histogram)
    Labels: result (success, error)
  - preview_cache_hits_total / preview_cache_misses_total: cache effectiveness (counter)
  - preview_active_targets: targets with at least one active subscriber (gauge)
  - preview_sweep_evictions_total: targets evicted by the periodic sweep (counter)

WebSocket Metrics:
  - websocket_connections: active connections (gauge)
  - websocket_messages_sent_total / _received_total: message counters
  - websocket_errors_total: errors by type (counter)

API Metrics:
  - api_requests_total: requests by method/endpoint/status (counter)
  - api_request_duration_seconds: request latency (histogram)
  - api_active_requests: in-flight requests (gauge)
  - api_rate_limit_hits_total: rate limit rejections by endpoint (counter)

# Usage Example

Basic setup in main.go:

	import (
	    "github.com/tomtom215/fleetd/internal/metrics"
	    "github.com/prometheus/client_golang/prometheus/promhttp"
	)

	func main() {
	    http.Handle("/metrics", promhttp.Handler())
	    metrics.RecordAPIRequest("GET", "/api/v1/devices", "200", 12*time.Millisecond)
	}

Recording a poller tick:

	start := time.Now()
	err := pollDevice(ctx, device)
	metrics.RecordPollerTick("fast", time.Since(start), err)

Recording a device client request:

	start := time.Now()
	resp, err := client.Do(req)
	kind := classifyError(err)
	metrics.RecordDeviceRequest("/channels", statusCode(resp), time.Since(start), kind)

# Prometheus Configuration

	scrape_configs:
	  - job_name: 'fleetd'
	    static_configs:
	      - targets: ['localhost:8080']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

# Cardinality Management

To prevent high cardinality issues:
  - Endpoint labels are normalized (no query parameters or path variables beyond
    the resource name)
  - error_kind is restricted to the closed ErrorKind enum shared with internal/models
  - Per-device gauges (circuit_breaker_state, poller_backoff_seconds) are bounded
    by the number of configured devices, not by request volume

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines; the Prometheus client library handles synchronization
internally.

# See Also

  - internal/middleware: HTTP middleware with metrics integration
  - internal/deviceclient: device request and circuit breaker instrumentation
  - internal/poller: tiered tick instrumentation
  - internal/eventbus: fan-out and ingestion transport instrumentation
  - https://prometheus.io/docs/practices/naming/: metric naming conventions
*/
package metrics
