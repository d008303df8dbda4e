// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package preview

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
)

// ErrNotRunning is returned by Subscribe when called before Serve has
// started: the service needs a live context to parent its poll loops.
var ErrNotRunning = fmt.Errorf("preview service is not running")

// Subscription identifies one caller's hold on a (device, channel)
// target, returned by Subscribe and consumed by Unsubscribe.
type Subscription struct {
	ID      string
	key     targetKey
	channel int
}

// Service is the Preview Image Service (component E). It owns every
// running (device, channel) poll target and the subscriber counts that
// drive their lifecycle.
type Service struct {
	cfg  config.PreviewConfig
	pool *deviceclient.Pool

	mu      sync.Mutex
	ctx     context.Context
	targets map[targetKey]*target
	subs    map[string]targetKey
}

// NewService builds a Service. Add it to the supervisor tree before any
// HTTP handler can reach Subscribe/Unsubscribe/GetImage.
func NewService(cfg config.PreviewConfig, pool *deviceclient.Pool) *Service {
	return &Service{
		cfg:     cfg,
		pool:    pool,
		targets: make(map[targetKey]*target),
		subs:    make(map[string]targetKey),
	}
}

// String implements fmt.Stringer for suture's logging.
func (s *Service) String() string {
	return "preview-service"
}

// Serve implements suture.Service: makes ctx available to Subscribe as
// the parent for new poll loops, then blocks until ctx is canceled, at
// which point every running target is stopped.
func (s *Service) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	for key, t := range s.targets {
		t.stop()
		delete(s.targets, key)
	}
	s.mu.Unlock()

	return ctx.Err()
}

// Subscribe registers the caller's interest in (device, channel),
// starting its poll loop if this is the first subscriber. client_hint
// is accepted for parity with the spec's signature but not otherwise
// used: subscriber identity doesn't affect polling behavior.
func (s *Service) Subscribe(device models.Device, channel int, opts deviceclient.PreviewOptions, clientHint string) (Subscription, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return Subscription{}, 0, false, ErrNotRunning
	}

	key := targetKey{device: device.ID, channel: channel}
	t, exists := s.targets[key]
	isFirst := !exists
	if !exists {
		client := s.pool.Client(device)
		t = newTarget(s.ctx, key, client, opts, s.cfg.CacheDir, s.cfg)
		s.targets[key] = t
		metrics.PreviewActiveTargets.Set(float64(len(s.targets)))
	}

	count := t.addSubscriber()

	sub := Subscription{ID: uuid.New().String(), key: key, channel: channel}
	s.subs[sub.ID] = key

	return sub, count, isFirst, nil
}

// Unsubscribe releases subscriberID's hold on its target. Once the
// target's count reaches zero its poll loop stops and its cached file
// is deleted.
func (s *Service) Unsubscribe(subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.subs[subscriberID]
	if !ok {
		return fmt.Errorf("unknown preview subscription %q", subscriberID)
	}
	delete(s.subs, subscriberID)

	t, ok := s.targets[key]
	if !ok {
		return nil
	}

	if t.removeSubscriber() == 0 {
		t.stop()
		delete(s.targets, key)
		metrics.PreviewActiveTargets.Set(float64(len(s.targets)))
	}
	return nil
}

// GetImage returns the most recent cached frame for (device, channel),
// or the synthetic placeholder if no target exists yet or nothing has
// been successfully fetched. The returned error kind is non-empty only
// when a real target exists and its most recent fetch failed, letting
// callers attach it as a diagnostic header on the placeholder response.
func (s *Service) GetImage(deviceID int64, channel int) (data []byte, contentType string, errKind models.ErrorKind) {
	s.mu.Lock()
	t, ok := s.targets[targetKey{device: deviceID, channel: channel}]
	s.mu.Unlock()

	if !ok {
		metrics.PreviewCacheMisses.Inc()
		return placeholderImage, placeholderContentType, ""
	}

	image, kind, found := t.read()
	if !found {
		metrics.PreviewCacheMisses.Inc()
		return placeholderImage, placeholderContentType, kind
	}

	metrics.PreviewCacheHits.Inc()
	contentType = "image/" + t.opts.Format
	if t.opts.Format == "" {
		contentType = "image/jpeg"
	}
	return image, contentType, ""
}
