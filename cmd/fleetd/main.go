// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

// Package main is the entry point for the fleetd server application.
//
// fleetd is a fleet telemetry and control plane for network-attached
// A/V encoder appliances. It polls each device's HTTP API on three
// independent tiers, persists canonical per-device state to an
// embedded DuckDB store, publishes every observed change as an event
// onto a NATS JetStream transport (durable across a broker outage via
// a BadgerDB write-ahead log), and fans surviving events out to
// WebSocket subscribers in real time. An HTTP API exposes health,
// metrics, administrative force-refresh/clear-cache, event ingest and
// catch-up, per-device publisher/recorder control, and preview-image
// subscription endpoints.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2, layered defaults -> config file -> env
//  2. Logging: zerolog, configured from the loaded configuration
//  3. Store: embedded DuckDB, the canonical persistence boundary
//  4. Device Client pool: shared HTTP transport, one breaker per device
//  5. Event Store & Real-time Bus: NATS JetStream transport plus the
//     BadgerDB write-ahead log sitting in front of it
//  6. Tiered Poller: reconciles the device roster into per-device loops
//  7. Preview Image Service: subscription-counted channel thumbnails
//  8. WebSocket Hub: real-time event fan-out to connected clients
//  9. HTTP API: chi router wired to every component above
//
// All of the above run inside a four-layer suture supervisor tree
// (devices/data/messaging/api), so a crash anywhere below the api
// layer never takes down the HTTP surface, and one device's poller
// loop crashing never affects another device's.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the
// supervisor tree is canceled, each layer stops in dependency order,
// and the event bus and store release their underlying connections
// before the process exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fleetd/internal/api"
	"github.com/tomtom215/fleetd/internal/auth"
	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/eventbus"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/poller"
	"github.com/tomtom215/fleetd/internal/preview"
	"github.com/tomtom215/fleetd/internal/store/duckdb"
	"github.com/tomtom215/fleetd/internal/supervisor"
	"github.com/tomtom215/fleetd/internal/supervisor/services"
	"github.com/tomtom215/fleetd/internal/websocket"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Str("environment", cfg.Server.Environment).Msg("starting fleetd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := duckdb.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize duckdb store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing duckdb store")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("duckdb store initialized")

	if cfg.Security.JWTSecret != "" {
		secretCipher, cipherErr := config.NewCredentialCipher(cfg.Security.JWTSecret)
		if cipherErr != nil {
			logging.Fatal().Err(cipherErr).Msg("failed to initialize device secret cipher")
		}
		db.SetSecretCipher(secretCipher)
	} else {
		logging.Warn().Msg("no JWT signing secret configured, device secrets will be stored and read as plaintext")
	}

	pool := deviceclient.NewPool(cfg.DeviceClient)
	defer pool.Close()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize jwt manager")
	}

	wsHub := websocket.NewHub(cfg.EventBus)

	treeLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(treeLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build supervisor tree")
	}

	bus, err := eventbus.New(ctx, cfg.EventBus, cfg.NATS, cfg.Detector, cfg.WAL, db, wsHub)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build event bus")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := bus.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("error shutting down event bus")
		}
	}()

	pollerSvc := poller.New(cfg.Poller, pool, db, bus, tree)
	previewSvc := preview.NewService(cfg.Preview, pool)
	previewSweeper := preview.NewSweeper(cfg.Preview)

	handler := api.NewHandler(cfg, db, pollerSvc, bus, previewSvc, pool, wsHub, jwtManager)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Data layer: the NATS ingestion transport's consumer loop, its
	// periodic durable/catch-up sweep, and the WAL retry loop that
	// republishes anything left pending across a broker outage.
	tree.AddDataService(bus)
	tree.AddDataService(eventbus.NewSweeper(bus))
	tree.AddDataService(bus.RetryLoop())

	// Devices layer: the roster reconciliation sweep (which itself adds
	// one per-device poller loop per known device), plus the preview
	// cache sweeper, since both iterate per-device/per-channel state.
	tree.AddDeviceService(pollerSvc)
	tree.AddDeviceService(previewSweeper)

	// Messaging layer: real-time fan-out to connected WebSocket clients.
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))

	// API layer: the HTTP server itself.
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("http server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("fleetd stopped gracefully")
}
