// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/fleetd/internal/auth"
	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/eventbus"
	"github.com/tomtom215/fleetd/internal/middleware"
	"github.com/tomtom215/fleetd/internal/poller"
	"github.com/tomtom215/fleetd/internal/preview"
	"github.com/tomtom215/fleetd/internal/store"
	"github.com/tomtom215/fleetd/internal/websocket"
)

// performanceWindow bounds how many recent requests the performance
// monitor keeps for its percentile calculations.
const performanceWindow = 1000

// Handler holds every dependency the route handlers in this package
// call into. It carries no state of its own beyond startTime; all
// durable state lives in the components it wraps.
type Handler struct {
	cfg   *config.Config
	store store.Store

	poller     *poller.Poller
	bus        *eventbus.Bus
	preview    *preview.Service
	pool       *deviceclient.Pool
	wsHub      *websocket.Hub
	jwtManager *auth.JWTManager

	perf *middleware.PerformanceMonitor

	validate *validator.Validate

	startTime time.Time
}

// NewHandler wires a Handler from its already-constructed component
// dependencies. wsHub may be nil in tests that don't exercise the
// WebSocket upgrade route; the handler reports 503 in that case
// rather than panicking.
func NewHandler(
	cfg *config.Config,
	st store.Store,
	pl *poller.Poller,
	bus *eventbus.Bus,
	prev *preview.Service,
	pool *deviceclient.Pool,
	wsHub *websocket.Hub,
	jwtManager *auth.JWTManager,
) *Handler {
	return &Handler{
		cfg:        cfg,
		store:      st,
		poller:     pl,
		bus:        bus,
		preview:    prev,
		pool:       pool,
		wsHub:      wsHub,
		jwtManager: jwtManager,
		perf:       middleware.NewPerformanceMonitor(performanceWindow),
		validate:   newValidator(),
		startTime:  time.Now(),
	}
}
