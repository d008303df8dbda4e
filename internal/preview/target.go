// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package preview

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
)

// previewJPEGQuality is the re-encode quality target from §4.E's
// "optimises it (e.g., JPEG quality ~85)".
const previewJPEGQuality = 85

// targetKey identifies one (device, channel) polling target.
type targetKey struct {
	device  int64
	channel int
}

func (k targetKey) String() string {
	return fmt.Sprintf("%d:%d", k.device, k.channel)
}

// target is one running poll loop shared by every subscriber of a
// (device, channel) pair.
type target struct {
	key    targetKey
	client *deviceclient.Client
	opts   deviceclient.PreviewOptions
	format string
	dir    string
	cfg    config.PreviewConfig

	cancel context.CancelFunc

	mu              sync.Mutex
	subscriberCount int

	consecutiveFailures atomic.Int64
	lastErrorKind       atomic.Value // models.ErrorKind

	cachePath string
}

// newTarget builds a target and immediately starts its poll loop under
// ctx. The caller holds the Service's lock when calling this, so the
// target is fully constructed before it can be observed by another
// goroutine.
func newTarget(ctx context.Context, key targetKey, client *deviceclient.Client, opts deviceclient.PreviewOptions, cacheDir string, cfg config.PreviewConfig) *target {
	format := opts.Format
	if format == "" {
		format = "jpeg"
	}
	dir := filepath.Join(cacheDir, fmt.Sprintf("%d", key.device))
	t := &target{
		key:       key,
		client:    client,
		opts:      opts,
		format:    format,
		dir:       dir,
		cfg:       cfg,
		cachePath: filepath.Join(dir, fmt.Sprintf("channel_%d.%s", key.channel, format)),
	}
	t.lastErrorKind.Store(models.ErrorKind(""))

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.run(loopCtx)

	return t
}

// run is the target's poll loop: fetch, write, sleep for nextDelay,
// repeat, until ctx is canceled.
func (t *target) run(ctx context.Context) {
	for {
		t.tick(ctx)

		delay := nextDelay(t.cfg, t.consecutiveFailures.Load())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *target) tick(ctx context.Context) {
	start := time.Now()
	image, err := t.client.GetPreview(ctx, t.key.channel, t.opts)
	metrics.RecordPreviewFetch(time.Since(start), err)

	if err != nil {
		t.consecutiveFailures.Add(1)
		t.lastErrorKind.Store(deviceclient.Classify(err))
		logging.Warn().Err(err).Int64("device", t.key.device).Int("channel", t.key.channel).Msg("preview fetch failed")
		return
	}

	t.consecutiveFailures.Store(0)
	t.lastErrorKind.Store(models.ErrorKind(""))

	data := t.optimize(image.Data)

	if writeErr := t.writeAtomic(data); writeErr != nil {
		logging.Warn().Err(writeErr).Str("path", t.cachePath).Msg("failed to write preview cache file")
	}
}

// optimize re-encodes a fetched frame before it is cached, per §4.E's
// "optimises it (e.g., JPEG quality ~85), and atomically replaces the
// cached file." PNG has no comparable quality knob, so only its
// compression level is maximized; a frame that fails to decode (a
// device returning a format the handler didn't ask for, or a corrupt
// fetch) is cached unmodified rather than dropped, since a stale-but-
// valid frame beats a blank one.
func (t *target) optimize(data []byte) []byte {
	switch t.format {
	case "png":
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			logging.Warn().Err(err).Int64("device", t.key.device).Int("channel", t.key.channel).Msg("preview png decode failed, caching raw frame")
			return data
		}
		var buf bytes.Buffer
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			logging.Warn().Err(err).Msg("preview png re-encode failed, caching raw frame")
			return data
		}
		return buf.Bytes()

	default: // "jpeg" and anything else the device happens to return
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			logging.Warn().Err(err).Int64("device", t.key.device).Int("channel", t.key.channel).Msg("preview jpeg decode failed, caching raw frame")
			return data
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewJPEGQuality}); err != nil {
			logging.Warn().Err(err).Msg("preview jpeg re-encode failed, caching raw frame")
			return data
		}
		return buf.Bytes()
	}
}

// writeAtomic writes data to a temp file in the target's directory and
// renames it over cachePath, so a concurrent GetImage read never
// observes a partially written frame.
func (t *target) writeAtomic(data []byte) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir %s: %w", t.dir, err)
	}

	tmp := t.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp preview file: %w", err)
	}
	if err := os.Rename(tmp, t.cachePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp preview file: %w", err)
	}
	return nil
}

// read returns the cached frame bytes, if present, and its last-known
// error classification (empty when the most recent fetch succeeded).
func (t *target) read() ([]byte, models.ErrorKind, bool) {
	data, err := os.ReadFile(t.cachePath)
	kind, _ := t.lastErrorKind.Load().(models.ErrorKind)
	if err != nil {
		return nil, kind, false
	}
	return data, kind, true
}

// addSubscriber increments the refcount and reports the new count.
func (t *target) addSubscriber() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscriberCount++
	return t.subscriberCount
}

// removeSubscriber decrements the refcount and reports the new count.
func (t *target) removeSubscriber() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscriberCount > 0 {
		t.subscriberCount--
	}
	return t.subscriberCount
}

// stop cancels the poll loop and deletes the cached file. Called once
// the refcount reaches zero.
func (t *target) stop() {
	t.cancel()
	_ = os.Remove(t.cachePath)
}
