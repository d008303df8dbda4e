// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidatePollerTierOrdering(t *testing.T) {
	cfg := defaultConfig()
	cfg.Poller.SlowInterval = cfg.Poller.MediumInterval
	assert.Error(t, cfg.Validate())
}

func TestValidateEventBusCatchUpLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.EventBus.CatchUpMaxLimit = cfg.EventBus.CatchUpDefaultLimit - 1
	assert.Error(t, cfg.Validate())
}

func TestValidateProductionRequiresJWTSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Environment = "production"
	cfg.Security.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.Security.JWTSecret = "a-sufficiently-long-shared-signing-secret"
	cfg.Security.CORSOrigins = []string{"https://fleet.example.com"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateProductionRejectsWildcardCORS(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Environment = "production"
	cfg.Security.JWTSecret = "a-sufficiently-long-shared-signing-secret"
	cfg.Security.CORSOrigins = []string{"*"}
	assert.Error(t, cfg.Validate())
}

func TestEnvTransformFuncMapsKnownKeys(t *testing.T) {
	assert.Equal(t, "poller.fast_interval", envTransformFunc("POLLER_FAST_INTERVAL"))
	assert.Equal(t, "", envTransformFunc("SOME_UNRELATED_VAR"))
}
