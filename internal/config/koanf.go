// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for,
// in order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fleetd/config.yaml",
	"/etc/fleetd/config.yml",
}

// ConfigPathEnvVar overrides the config file search path entirely.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with sensible production defaults. These
// are applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		DeviceClient: DeviceClientConfig{
			RequestTimeout:       10 * time.Second,
			MaxIdleConnsPerHost:  20,
			IdleConnTimeout:      30 * time.Second,
			BreakerMinRequests:   10,
			BreakerFailureRatio:  0.6,
			BreakerOpenTimeout:   30 * time.Second,
			BreakerCountInterval: 2 * time.Minute,
		},
		Poller: PollerConfig{
			FastInterval:           5 * time.Second,
			MediumInterval:         30 * time.Second,
			SlowInterval:           5 * time.Minute,
			BackoffInitial:         2 * time.Second,
			BackoffMax:             5 * time.Minute,
			BackoffMultiplier:      2.0,
			ErrorThreshold:         10,
			ReconciliationInterval: time.Minute,
		},
		Detector: DetectorConfig{
			DedupWindowCapacity: 10000,
			DedupWindowTTL:      10 * time.Minute,
		},
		EventBus: EventBusConfig{
			RingCapacityPerKey:  256,
			RingTTL:             30 * time.Minute,
			CatchUpDefaultLimit: 50,
			CatchUpMaxLimit:     500,
			MaxConnections:            2000,
			MaxConnectionsPerIP:       25,
			MaxSubscriptionsPerClient: 50,
			SendQueueSize:             100,
			MaxMessageSize:            512 * 1024,
			PongWait:                  60 * time.Second,
			PingPeriod:                54 * time.Second,
			WriteWait:                 10 * time.Second,
		},
		NATS: NATSConfig{
			URL:                 "nats://127.0.0.1:4222",
			EmbeddedServer:      true,
			StoreDir:            "/data/nats/jetstream",
			MaxMemory:           1 << 30,
			MaxStore:            10 << 30,
			StreamRetentionDays: 7,
			DurableName:         "fleetd-ingest",
			QueueGroup:          "ingest",
			PublishTimeout:      5 * time.Second,
		},
		WAL: WALConfig{
			Path:          "/data/wal",
			SyncWrites:    true,
			RetryInterval: 30 * time.Second,
		},
		Preview: PreviewConfig{
			CacheDir:          "/data/images",
			SweepInterval:     60 * time.Second,
			MaxAge:            3 * time.Minute,
			BackoffInitial:    5 * time.Second,
			BackoffMax:        5 * time.Minute,
			BackoffMultiplier: 2.0,
		},
		Database: DatabaseConfig{
			Path:      "/data/fleetd.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8443,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			JWTSecret:       "",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			TrustedProxies:  []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file, if found
//  3. Environment variables: override everything
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when sourced from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields, needed because env vars always arrive as strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names onto koanf config paths.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Device client
		"device_request_timeout":      "device_client.request_timeout",
		"device_max_idle_conns":       "device_client.max_idle_conns_per_host",
		"device_idle_conn_timeout":    "device_client.idle_conn_timeout",
		"device_breaker_min_requests": "device_client.breaker_min_requests",
		"device_breaker_failure_ratio": "device_client.breaker_failure_ratio",
		"device_breaker_open_timeout": "device_client.breaker_open_timeout",

		// Poller
		"poller_fast_interval":     "poller.fast_interval",
		"poller_medium_interval":   "poller.medium_interval",
		"poller_slow_interval":     "poller.slow_interval",
		"poller_backoff_initial":   "poller.backoff_initial",
		"poller_backoff_max":       "poller.backoff_max",
		"poller_backoff_multiplier": "poller.backoff_multiplier",
		"poller_reconcile_interval": "poller.reconciliation_interval",

		// Detector
		"detector_dedup_capacity": "detector.dedup_window_capacity",
		"detector_dedup_ttl":      "detector.dedup_window_ttl",

		// Event bus
		"eventbus_ring_capacity":   "event_bus.ring_capacity_per_key",
		"eventbus_ring_ttl":        "event_bus.ring_ttl",
		"eventbus_catchup_default": "event_bus.catch_up_default_limit",
		"eventbus_catchup_max":     "event_bus.catch_up_max_limit",
		"eventbus_max_connections": "event_bus.max_connections",
		"eventbus_max_connections_per_ip":       "event_bus.max_connections_per_ip",
		"eventbus_max_subscriptions_per_client": "event_bus.max_subscriptions_per_client",
		"eventbus_send_queue_size":              "event_bus.send_queue_size",

		// NATS
		"nats_url":            "nats.url",
		"nats_embedded":       "nats.embedded_server",
		"nats_store_dir":      "nats.store_dir",
		"nats_max_memory":     "nats.max_memory",
		"nats_max_store":      "nats.max_store",
		"nats_retention_days": "nats.stream_retention_days",
		"nats_durable_name":   "nats.durable_name",
		"nats_queue_group":    "nats.queue_group",

		// Preview
		"preview_cache_dir":      "preview.cache_dir",
		"preview_sweep_interval": "preview.sweep_interval",
		"preview_max_age":        "preview.max_age",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Server
		"http_port":    "server.port",
		"http_host":    "server.host",
		"environment":  "server.environment",

		// Security
		"jwt_secret":          "security.jwt_secret",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"cors_origins":        "security.cors_origins",
		"trusted_proxies":     "security.trusted_proxies",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage
// (hot-reload, custom sources, tests).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile sets up a file watcher for hot-reload capability. The
// caller is responsible for mutex protection around config swap-in.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
