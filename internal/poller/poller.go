// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
	"github.com/tomtom215/fleetd/internal/store"
)

// ErrDeviceNotFound is returned by ForceRefresh and ClearCache when
// the given device ID has no running loop, either because it was
// never in the roster or because Reconcile has not yet picked it up.
var ErrDeviceNotFound = errors.New("device not polled")

// DeviceServiceTree is the subset of *supervisor.SupervisorTree the
// Poller needs: adding and removing per-device services from the
// devices layer. Defined as an interface here so tests can substitute
// an in-memory fake instead of building a real suture supervisor.
type DeviceServiceTree interface {
	AddDeviceService(svc suture.Service) suture.ServiceToken
	RemoveDeviceService(token suture.ServiceToken) error
}

// Poller reconciles the device roster into running per-device loops.
type Poller struct {
	cfg   config.PollerConfig
	pool  *deviceclient.Pool
	store store.Store
	sink  EventSink
	tree  DeviceServiceTree

	mu      sync.Mutex
	running map[int64]suture.ServiceToken
	loops   map[int64]*deviceLoop
}

// New creates a Poller. Call Reconcile once directly to perform an
// initial roster load before adding the returned Poller itself as a
// supervised service for the recurring sweep.
func New(cfg config.PollerConfig, pool *deviceclient.Pool, st store.Store, sink EventSink, tree DeviceServiceTree) *Poller {
	return &Poller{
		cfg:     cfg,
		pool:    pool,
		store:   st,
		sink:    sink,
		tree:    tree,
		running: make(map[int64]suture.ServiceToken),
		loops:   make(map[int64]*deviceLoop),
	}
}

// ForceRefresh runs all three polling tiers for a device once,
// immediately, outside their normal tickers. Since emission is
// unconditional in every tier, the caller always observes the
// device's current snapshot afterward regardless of whether it
// differs from the last persisted state.
func (p *Poller) ForceRefresh(ctx context.Context, deviceID int64) error {
	p.mu.Lock()
	loop, ok := p.loops[deviceID]
	p.mu.Unlock()
	if !ok {
		return ErrDeviceNotFound
	}
	return loop.forceTick(ctx)
}

// ClearCache discards a device's in-memory diff snapshots, so the
// next tick re-persists its current state even if nothing changed.
func (p *Poller) ClearCache(deviceID int64) error {
	p.mu.Lock()
	loop, ok := p.loops[deviceID]
	p.mu.Unlock()
	if !ok {
		return ErrDeviceNotFound
	}
	loop.clearCache()
	return nil
}

// String implements fmt.Stringer for suture's logging.
func (p *Poller) String() string {
	return "poller-reconciler"
}

// Serve implements suture.Service: runs an initial reconciliation
// immediately, then on cfg.ReconciliationInterval thereafter, until
// ctx is canceled.
func (p *Poller) Serve(ctx context.Context) error {
	if err := p.Reconcile(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial device roster reconciliation failed")
	}

	interval := p.cfg.ReconciliationInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Reconcile(ctx); err != nil {
				logging.Warn().Err(err).Msg("device roster reconciliation failed")
			}
		}
	}
}

// Reconcile reloads the device roster and starts/stops device loops
// to match: new devices start their three loops, removed devices have
// their loop canceled and its in-memory snapshots discarded.
func (p *Poller) Reconcile(ctx context.Context) error {
	devices, err := p.store.ListDevices(ctx)
	if err != nil {
		return err
	}

	seen := make(map[int64]bool, len(devices))

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, device := range devices {
		seen[device.ID] = true
		if _, ok := p.running[device.ID]; ok {
			continue
		}

		client := p.pool.Client(device)
		loop := newDeviceLoop(device, client, p.store, p.sink, p.cfg)
		token := p.tree.AddDeviceService(loop)
		p.running[device.ID] = token
		p.loops[device.ID] = loop
		logging.Info().Int64("device", device.ID).Str("address", device.Address).Msg("started device poller")
	}

	for deviceID, token := range p.running {
		if seen[deviceID] {
			continue
		}
		if err := p.tree.RemoveDeviceService(token); err != nil {
			logging.Warn().Err(err).Int64("device", deviceID).Msg("failed to stop removed device's poller")
		}
		delete(p.running, deviceID)
		delete(p.loops, deviceID)
		logging.Info().Int64("device", deviceID).Msg("stopped device poller for removed device")
	}

	metrics.PollerDevicesActive.Set(float64(len(p.running)))
	return nil
}

// encodeChannels serializes a channel snapshot for the device_states
// channels_data column.
func encodeChannels(channels []models.Channel) ([]byte, error) {
	return json.Marshal(channels)
}
