// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/fleetd/internal/config"
)

// embeddedServer wraps an in-process nats-server/v2 JetStream instance,
// letting a single fleetd binary ship the ingestion transport without an
// external NATS deployment. A non-embedded deployment instead points
// NATSConfig.URL at an external cluster and this type is never built.
type embeddedServer struct {
	server    *server.Server
	clientURL string
}

// startEmbeddedServer starts an in-process NATS server configured for
// JetStream with cfg's store directory and resource limits. It blocks
// until the server is ready for client connections or 30 seconds elapse.
func startEmbeddedServer(cfg config.NATSConfig) (*embeddedServer, error) {
	opts := &server.Options{
		ServerName:         "fleetd-events",
		Host:               "127.0.0.1",
		Port:               4222,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		DontListen:         false,
		MaxPayload:         8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within timeout")
	}

	return &embeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL a Publisher/Subscriber in this same process
// should connect to.
func (s *embeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the embedded server, waiting for in-flight messages to
// drain or ctx to expire, whichever comes first.
func (s *embeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
