// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package config

import "fmt"

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validatePoller(); err != nil {
		return err
	}
	if err := c.validateEventBus(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePoller() error {
	if c.Poller.FastInterval <= 0 {
		return fmt.Errorf("poller.fast_interval must be positive")
	}
	if c.Poller.MediumInterval <= c.Poller.FastInterval {
		return fmt.Errorf("poller.medium_interval must be greater than fast_interval")
	}
	if c.Poller.SlowInterval <= c.Poller.MediumInterval {
		return fmt.Errorf("poller.slow_interval must be greater than medium_interval")
	}
	if c.Poller.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("poller.backoff_multiplier must be greater than 1.0")
	}
	if c.Poller.BackoffMax < c.Poller.BackoffInitial {
		return fmt.Errorf("poller.backoff_max must be >= backoff_initial")
	}
	return nil
}

func (c *Config) validateEventBus() error {
	if c.EventBus.RingCapacityPerKey <= 0 {
		return fmt.Errorf("event_bus.ring_capacity_per_key must be positive")
	}
	if c.EventBus.CatchUpMaxLimit < c.EventBus.CatchUpDefaultLimit {
		return fmt.Errorf("event_bus.catch_up_max_limit must be >= catch_up_default_limit")
	}
	if c.EventBus.MaxConnections <= 0 {
		return fmt.Errorf("event_bus.max_connections must be positive")
	}
	if c.EventBus.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("event_bus.max_connections_per_ip must be positive")
	}
	if c.EventBus.MaxSubscriptionsPerClient <= 0 {
		return fmt.Errorf("event_bus.max_subscriptions_per_client must be positive")
	}
	if c.EventBus.SendQueueSize <= 0 {
		return fmt.Errorf("event_bus.send_queue_size must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.JWTSecret == "" && c.IsProduction() {
		return fmt.Errorf("security.jwt_secret is required in production")
	}
	if len(c.Security.JWTSecret) > 0 && len(c.Security.JWTSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes in production")
	}
	if c.Security.RateLimitReqs <= 0 {
		return fmt.Errorf("security.rate_limit_reqs must be positive")
	}
	if c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("security.rate_limit_window must be positive")
	}
	return c.validateCORS()
}

func (c *Config) validateCORS() error {
	if c.IsProduction() {
		for _, origin := range c.Security.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("security.cors_origins must not contain \"*\" in production")
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}
