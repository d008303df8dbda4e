// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package preview

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
)

// Sweeper periodically deletes cached preview files older than
// cfg.MaxAge and removes any device directory left empty afterward,
// independent of any subscription's own stop-and-delete path. This is
// the backstop that bounds disk use even if a crash happens between a
// subscriber count reaching zero and its target's file removal.
type Sweeper struct {
	cacheDir string
	interval time.Duration
	maxAge   time.Duration
}

// NewSweeper builds a Sweeper from PreviewConfig.
func NewSweeper(cfg config.PreviewConfig) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{cacheDir: cfg.CacheDir, interval: interval, maxAge: cfg.MaxAge}
}

// String implements fmt.Stringer for suture's logging.
func (s *Sweeper) String() string {
	return "preview-sweeper"
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	entries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("dir", s.cacheDir).Msg("failed to list preview cache directory")
		}
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	for _, deviceDir := range entries {
		if !deviceDir.IsDir() {
			continue
		}
		devicePath := filepath.Join(s.cacheDir, deviceDir.Name())
		s.sweepDeviceDir(devicePath, cutoff)
	}
}

func (s *Sweeper) sweepDeviceDir(devicePath string, cutoff time.Time) {
	files, err := os.ReadDir(devicePath)
	if err != nil {
		logging.Warn().Err(err).Str("dir", devicePath).Msg("failed to list device preview directory")
		return
	}

	remaining := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(devicePath, file.Name())); err != nil {
				logging.Warn().Err(err).Str("file", file.Name()).Msg("failed to remove expired preview file")
			} else {
				metrics.PreviewSweepEvictions.Inc()
			}
			continue
		}
		remaining++
	}

	if remaining == 0 {
		_ = os.Remove(devicePath)
	}
}
