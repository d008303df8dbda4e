// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package config provides centralized configuration management for fleetd.

# Configuration Sources

Layered via Koanf v2, in increasing precedence:

  - Built-in defaults (defaultConfig)
  - An optional YAML file (config.yaml, or CONFIG_PATH)
  - Environment variables

# Configuration Structure

  - DeviceClientConfig: per-device HTTP transport and circuit breaker
  - PollerConfig: tier cadence and cross-tick backoff
  - DetectorConfig: change-hash dedup window sizing
  - EventBusConfig: ring buffer capacity, catch-up limits, WebSocket caps
  - NATSConfig: embedded JetStream ingestion transport
  - PreviewConfig: on-disk image cache and fetch backoff
  - DatabaseConfig: DuckDB path and memory limits
  - ServerConfig: HTTP bind address and timeouts
  - SecurityConfig: bearer-token validation, CORS, rate limiting
  - LoggingConfig: zerolog level/format

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal().Err(err).Msg("failed to load configuration")
	}
	// cfg.Poller.FastInterval, cfg.Database.Path, etc. are now populated.

Config is immutable after loading and safe for concurrent read access.
*/
package config
