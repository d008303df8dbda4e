// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/detector"
	"github.com/tomtom215/fleetd/internal/logging"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
	"github.com/tomtom215/fleetd/internal/store"
)

// publisherRecord is the in-memory merge point for the two shapes that
// contribute to one publisher_states row: the fast tier's status poll
// (Type/Configured/Started/State) and the medium tier's name poll
// (Name). Persisting the full row on every write means each tier must
// carry the other's last-known fields forward rather than clobber
// them with zero values.
type publisherRecord struct {
	Name         string
	Type         string
	IsConfigured bool
	Started      bool
	State        models.PublisherState
}

// deviceLoop is the suture.Service for one device's three tiers.
type deviceLoop struct {
	device models.Device
	client *deviceclient.Client
	store  store.Store
	sink   EventSink
	cfg    config.PollerConfig

	mu         sync.Mutex
	channelIDs []int                               // learned from the medium tier
	publishers map[int]map[int]*publisherRecord     // channel id -> publisher id -> record
	recorders  []models.Recorder                   // last known recorder list, for the status diff

	prevPublisherStatus map[string]any // diff snapshot keyed by "shape:channel"
	prevPublisherNames  map[string]any
	prevRecorders       any
	prevChannels        any
	prevIdentity        any
	prevStatus          any

	consecutiveErrors atomic.Int64
	fastBusy          atomic.Bool
	mediumBusy        atomic.Bool
	slowBusy          atomic.Bool
}

func newDeviceLoop(device models.Device, client *deviceclient.Client, st store.Store, sink EventSink, cfg config.PollerConfig) *deviceLoop {
	return &deviceLoop{
		device:              device,
		client:              client,
		store:               st,
		sink:                sink,
		cfg:                 cfg,
		publishers:          make(map[int]map[int]*publisherRecord),
		prevPublisherStatus: make(map[string]any),
		prevPublisherNames:  make(map[string]any),
	}
}

// String implements fmt.Stringer for suture's logging.
func (d *deviceLoop) String() string {
	return fmt.Sprintf("poller-device-%d", d.device.ID)
}

// Serve implements suture.Service: runs the three tiers until ctx is
// canceled, each on its own ticker with independent backoff.
func (d *deviceLoop) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() { defer wg.Done(); d.runFastTier(ctx) }()
	go func() { defer wg.Done(); d.runTier(ctx, "medium", d.cfg.MediumInterval, &d.mediumBusy, d.tickMedium) }()
	go func() { defer wg.Done(); d.runTier(ctx, "slow", d.cfg.SlowInterval, &d.slowBusy, d.tickSlow) }()

	wg.Wait()
	return ctx.Err()
}

// forceTick runs all three tiers once, outside their normal tickers,
// for a manually triggered refresh. Event emission in each tier is
// already unconditional, so the caller observes the device's current
// snapshot regardless of what the change detector decides about
// persistence.
func (d *deviceLoop) forceTick(ctx context.Context) error {
	var errs []error
	if err := d.tickFast(ctx); err != nil {
		errs = append(errs, errf("force-refresh fast tier", err))
	}
	if err := d.tickMedium(ctx); err != nil {
		errs = append(errs, errf("force-refresh medium tier", err))
	}
	if err := d.tickSlow(ctx); err != nil {
		errs = append(errs, errf("force-refresh slow tier", err))
	}
	return errors.Join(errs...)
}

// clearCache discards every in-memory diff snapshot this loop holds,
// so the next tick (forced or scheduled) treats the device's current
// state as first-seen and re-persists it regardless of whether the
// device itself actually changed anything.
func (d *deviceLoop) clearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prevPublisherStatus = make(map[string]any)
	d.prevPublisherNames = make(map[string]any)
	d.prevRecorders = nil
	d.prevChannels = nil
	d.prevIdentity = nil
	d.prevStatus = nil
}

// runTier is the generic skip-if-busy ticker loop used by the medium
// and slow tiers, which never back off. The fast tier has its own
// variant below since it needs to vary its own interval.
func (d *deviceLoop) runTier(ctx context.Context, tier string, interval time.Duration, busy *atomic.Bool, tick func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !busy.CompareAndSwap(false, true) {
				continue // previous tick for this tier is still running
			}
			d.runOneTick(ctx, tier, busy, tick)
		}
	}
}

func (d *deviceLoop) runOneTick(ctx context.Context, tier string, busy *atomic.Bool, tick func(ctx context.Context) error) {
	defer busy.Store(false)

	start := time.Now()
	err := tick(ctx)
	metrics.RecordPollerTick(tier, time.Since(start), err)
	if err != nil {
		logging.Warn().Err(err).Int64("device", d.device.ID).Str("tier", tier).Msg("poller tick failed")
	}
}

// runFastTier is runTier's fast-tier variant: on ErrorThreshold
// consecutive fast-tick failures it scales its own interval with
// exponential backoff, resetting to the configured interval on the
// next success.
func (d *deviceLoop) runFastTier(ctx context.Context) {
	interval := d.cfg.FastInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.fastBusy.CompareAndSwap(false, true) {
				continue
			}
			d.tickFastAndCount(ctx)
			d.fastBusy.Store(false)

			next := d.nextFastInterval()
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

func (d *deviceLoop) tickFastAndCount(ctx context.Context) {
	start := time.Now()
	err := d.tickFast(ctx)
	metrics.RecordPollerTick("fast", time.Since(start), err)

	if err != nil {
		d.consecutiveErrors.Add(1)
		logging.Warn().Err(err).Int64("device", d.device.ID).Msg("fast tier tick failed")
		d.recordDeviceError(ctx, err)
	} else {
		d.consecutiveErrors.Store(0)
	}
}

// nextFastInterval computes the fast tier's next polling interval per
// the consecutive-error counter: base interval below the threshold,
// exponential backoff above it, capped at BackoffMax.
func (d *deviceLoop) nextFastInterval() time.Duration {
	errors := d.consecutiveErrors.Load()
	threshold := int64(d.cfg.ErrorThreshold)
	if threshold <= 0 || errors < threshold {
		metrics.PollerBackoffSeconds.WithLabelValues(fmt.Sprintf("%d", d.device.ID)).Set(0)
		return d.cfg.FastInterval
	}

	k := errors - threshold
	backoff := float64(d.cfg.BackoffInitial) * math.Pow(d.cfg.BackoffMultiplier, float64(k))
	capped := time.Duration(backoff)
	if d.cfg.BackoffMax > 0 && capped > d.cfg.BackoffMax {
		capped = d.cfg.BackoffMax
	}
	metrics.PollerBackoffSeconds.WithLabelValues(fmt.Sprintf("%d", d.device.ID)).Set(capped.Seconds())
	return capped
}

// recordDeviceError persists and emits the error pseudo-state for a
// failed fast tick, so dashboards can show the device as unreachable
// without waiting on the medium/slow tiers.
func (d *deviceLoop) recordDeviceError(ctx context.Context, tickErr error) {
	now := time.Now().UTC()
	state := models.DeviceState{
		DeviceID:   d.device.ID,
		Status:     "error",
		ErrorCount: int(d.consecutiveErrors.Load()),
		LastSeen:   now,
		UpdatedAt:  now,
	}
	if err := d.store.UpsertDeviceState(ctx, state); err != nil {
		logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to persist device error state")
	}
	emit(ctx, d.sink, models.EventTypeDeviceHealth, d.device.ID, nil, nil, map[string]any{
		"status":      "error",
		"error":       tickErr.Error(),
		"error_count": state.ErrorCount,
		"last_seen":   now,
	})
}

// settledResult is one outcome of an all-settled fan-out: either a
// value or an error, never both, with the index preserved so the
// caller can still act on the shapes that succeeded.
type settledResult[T any] struct {
	index int
	value T
	err   error
}

// fetchAllSettled runs fetchers concurrently and returns every
// outcome, success or failure, in a structured join that tolerates
// partial failure: one shape's fetch error never cancels the others.
func fetchAllSettled[T any](ctx context.Context, fetchers []func(ctx context.Context) (T, error)) []settledResult[T] {
	results := make([]settledResult[T], len(fetchers))
	var wg sync.WaitGroup
	wg.Add(len(fetchers))
	for i, fetch := range fetchers {
		go func(i int, fetch func(ctx context.Context) (T, error)) {
			defer wg.Done()
			value, err := fetch(ctx)
			results[i] = settledResult[T]{index: i, value: value, err: err}
		}(i, fetch)
	}
	wg.Wait()
	return results
}

// tickFast polls publisher status for every known channel and
// recorder status, concurrently and tolerant of partial failure, then
// gates writes on the change detector and always emits.
func (d *deviceLoop) tickFast(ctx context.Context) error {
	d.mu.Lock()
	channelIDs := append([]int(nil), d.channelIDs...)
	d.mu.Unlock()

	fetchers := make([]func(ctx context.Context) ([]models.Publisher, error), len(channelIDs))
	for i, channelID := range channelIDs {
		channelID := channelID
		fetchers[i] = func(ctx context.Context) ([]models.Publisher, error) {
			wire, err := d.client.GetPublishersStatus(ctx, channelID)
			if err != nil {
				return nil, err
			}
			out := make([]models.Publisher, 0, len(wire))
			for _, wp := range wire {
				out = append(out, models.Publisher{
					DeviceID:    d.device.ID,
					ChannelID:   channelID,
					PublisherID: wp.ID,
					Type:        wp.Type,
					Configured:  wp.Status.IsConfigured,
					Started:     wp.Status.Started,
					State:       models.PublisherState(wp.Status.State),
				})
			}
			return out, nil
		}
	}

	statusResults := fetchAllSettled(ctx, fetchers)

	recorders, recordersErr := d.client.GetRecordersStatus(ctx)

	var firstErr error
	for _, r := range statusResults {
		if r.err != nil && firstErr == nil {
			firstErr = errf("publisher status", r.err)
		}
		if r.err != nil {
			continue
		}
		d.processPublisherStatus(ctx, channelIDs[r.index], r.value)
	}

	if recordersErr != nil {
		if firstErr == nil {
			firstErr = errf("recorder status", recordersErr)
		}
	} else {
		d.processRecorders(ctx, recorders)
	}

	if firstErr == nil {
		d.refreshDeviceLiveness(ctx)
	}

	return firstErr
}

func (d *deviceLoop) processPublisherStatus(ctx context.Context, channelID int, status []models.Publisher) {
	key := fmt.Sprintf("status:%d", channelID)

	d.mu.Lock()
	prev := d.prevPublisherStatus[key]
	verdict := detector.Diff(prev, status)
	d.prevPublisherStatus[key] = status

	channelPublishers, ok := d.publishers[channelID]
	if !ok {
		channelPublishers = make(map[int]*publisherRecord)
		d.publishers[channelID] = channelPublishers
	}
	for _, p := range status {
		rec, ok := channelPublishers[p.PublisherID]
		if !ok {
			rec = &publisherRecord{Name: fmt.Sprintf("Publisher %d", p.PublisherID)}
			channelPublishers[p.PublisherID] = rec
		}
		rec.Type = p.Type
		rec.IsConfigured = p.Configured
		rec.Started = p.Started
		rec.State = p.State
	}
	rows := make([]store.PublisherStateRow, 0, len(status))
	now := time.Now().UTC()
	for _, p := range status {
		rec := channelPublishers[p.PublisherID]
		rows = append(rows, store.PublisherStateRow{
			DeviceID: d.device.ID, ChannelID: channelID, PublisherID: p.PublisherID,
			Name: rec.Name, Type: rec.Type, IsConfigured: rec.IsConfigured,
			Started: rec.Started, State: rec.State, LastUpdated: now,
		})
	}
	d.mu.Unlock()

	if verdict != detector.VerdictUnchanged {
		for _, row := range rows {
			if err := d.store.UpsertPublisherState(ctx, row); err != nil {
				logging.Warn().Err(err).Int64("device", d.device.ID).Int("channel", channelID).Msg("failed to persist publisher state")
			}
		}
	}

	for _, p := range status {
		publisherID := p.PublisherID
		emit(ctx, d.sink, models.EventTypePublisherStatus, d.device.ID, &channelID, &publisherID, map[string]any{
			"type": p.Type, "configured": p.Configured, "started": p.Started, "state": p.State,
		})
	}
}

func (d *deviceLoop) processRecorders(ctx context.Context, recorders []models.Recorder) {
	for i := range recorders {
		recorders[i].DeviceID = d.device.ID
	}

	d.mu.Lock()
	verdict := detector.Diff(d.prevRecorders, recorders)
	d.prevRecorders = recorders
	d.recorders = recorders
	d.mu.Unlock()

	if verdict != detector.VerdictUnchanged {
		now := time.Now().UTC()
		for _, r := range recorders {
			row := store.RecorderStateRow{
				DeviceID: d.device.ID, RecorderID: r.RecorderID, Name: r.Name, State: r.State,
				Duration: r.Duration, Active: r.Active, Total: r.Total, Multisource: r.Multisource,
				LastUpdated: now,
			}
			if err := d.store.UpsertRecorderState(ctx, row); err != nil {
				logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to persist recorder state")
			}
		}
	}

	for _, r := range recorders {
		recorderID := r.RecorderID
		emit(ctx, d.sink, models.EventTypeRecorderStatus, d.device.ID, nil, &recorderID, map[string]any{
			"name": r.Name, "state": r.State, "active": r.Active, "total": r.Total,
		})
	}
}

// refreshDeviceLiveness upserts the device's healthy liveness row.
// This is not gated by the change detector: last_seen must advance on
// every successful fast tick regardless of whether anything else
// changed, or a healthy device with unchanging channels would never
// update its liveness timestamp.
func (d *deviceLoop) refreshDeviceLiveness(ctx context.Context) {
	now := time.Now().UTC()
	state := models.DeviceState{DeviceID: d.device.ID, Status: "healthy", ErrorCount: 0, LastSeen: now, UpdatedAt: now}
	if err := d.store.UpsertDeviceState(ctx, state); err != nil {
		logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to persist device liveness")
	}
	emit(ctx, d.sink, models.EventTypeDeviceHealth, d.device.ID, nil, nil, map[string]any{"status": "healthy"})
}

// tickMedium polls the channel list and, for every publisher it
// names, the publisher's name (parallel fan-out per channel;
// individual name-fetch failures degrade to the synthetic name rather
// than failing the tick, since GetPublisherName never returns an
// error itself).
func (d *deviceLoop) tickMedium(ctx context.Context) error {
	wireChannels, err := d.client.GetChannels(ctx)
	if err != nil {
		return errf("channels", err)
	}

	channels := make([]models.Channel, 0, len(wireChannels))
	channelIDs := make([]int, 0, len(wireChannels))
	for _, wc := range wireChannels {
		channelIDs = append(channelIDs, wc.ID)
		publishers := make([]models.Publisher, 0, len(wc.Publishers))
		for _, wp := range wc.Publishers {
			publishers = append(publishers, models.Publisher{
				DeviceID: d.device.ID, ChannelID: wc.ID, PublisherID: wp.ID,
				Type: wp.Type, Configured: wp.Status.IsConfigured, Started: wp.Status.Started,
				State: models.PublisherState(wp.Status.State),
			})
		}
		channels = append(channels, models.Channel{DeviceID: d.device.ID, ChannelID: wc.ID, Publishers: publishers})
	}
	sort.Ints(channelIDs)

	d.mu.Lock()
	d.channelIDs = channelIDs
	d.mu.Unlock()

	d.fetchAndMergeNames(ctx, channels)

	d.mu.Lock()
	verdict := detector.Diff(d.prevChannels, channels)
	d.prevChannels = channels
	d.mu.Unlock()

	if verdict != detector.VerdictUnchanged {
		encoded, err := encodeChannels(channels)
		if err != nil {
			logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to encode channels blob")
		} else {
			now := time.Now().UTC()
			state, stateErr := d.store.GetDeviceState(ctx, d.device.ID)
			if stateErr != nil && !errors.Is(stateErr, store.ErrNotFound) {
				logging.Warn().Err(stateErr).Int64("device", d.device.ID).Msg("failed to read prior device state before channels update")
			}
			state.DeviceID = d.device.ID
			state.ChannelsData = encoded
			state.UpdatedAt = now
			if state.LastSeen.IsZero() {
				state.LastSeen = now
			}
			if state.Status == "" {
				state.Status = "healthy"
			}
			if err := d.store.UpsertDeviceState(ctx, state); err != nil {
				logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to persist device channels")
			}
		}
	}

	emit(ctx, d.sink, models.EventTypeDeviceChannels, d.device.ID, nil, nil, channels)

	return nil
}

// fetchAndMergeNames resolves each publisher's name in parallel and
// merges it into the shared publisher registry, then persists and
// emits the name shape independent of the status shape's diff.
func (d *deviceLoop) fetchAndMergeNames(ctx context.Context, channels []models.Channel) {
	type namedPublisher struct {
		channelID   int
		publisherID int
		name        string
	}

	var toFetch []namedPublisher
	for _, ch := range channels {
		for _, p := range ch.Publishers {
			toFetch = append(toFetch, namedPublisher{channelID: ch.ChannelID, publisherID: p.PublisherID})
		}
	}

	fetchers := make([]func(ctx context.Context) (namedPublisher, error), len(toFetch))
	for i, np := range toFetch {
		np := np
		fetchers[i] = func(ctx context.Context) (namedPublisher, error) {
			np.name = d.client.GetPublisherName(ctx, np.channelID, np.publisherID)
			return np, nil
		}
	}
	results := fetchAllSettled(ctx, fetchers)

	names := make(map[string]any, len(results)) // "channel:publisher" -> name, for the change diff
	var rows []store.PublisherStateRow

	d.mu.Lock()
	for _, r := range results {
		np := r.value
		channelPublishers, ok := d.publishers[np.channelID]
		if !ok {
			channelPublishers = make(map[int]*publisherRecord)
			d.publishers[np.channelID] = channelPublishers
		}
		rec, ok := channelPublishers[np.publisherID]
		if !ok {
			rec = &publisherRecord{}
			channelPublishers[np.publisherID] = rec
		}
		rec.Name = np.name
		names[fmt.Sprintf("%d:%d", np.channelID, np.publisherID)] = np.name
		rows = append(rows, store.PublisherStateRow{
			DeviceID: d.device.ID, ChannelID: np.channelID, PublisherID: np.publisherID,
			Name: rec.Name, Type: rec.Type, IsConfigured: rec.IsConfigured,
			Started: rec.Started, State: rec.State, LastUpdated: time.Now().UTC(),
		})
	}
	verdict := detector.Diff(d.prevPublisherNames, names)
	d.prevPublisherNames = names
	d.mu.Unlock()

	if verdict != detector.VerdictUnchanged {
		for _, row := range rows {
			if err := d.store.UpsertPublisherState(ctx, row); err != nil {
				logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to persist publisher name")
			}
		}
	}

	for _, r := range results {
		np := r.value
		channelID, publisherID := np.channelID, np.publisherID
		emit(ctx, d.sink, models.EventTypePublisherNames, d.device.ID, &channelID, &publisherID, map[string]any{"name": np.name})
	}
}

// tickSlow polls system identity and system status. Identity is
// written only on change; status is appended unconditionally since
// system_status is a time series, not canonical state.
func (d *deviceLoop) tickSlow(ctx context.Context) error {
	identity, identErr := d.client.GetSystemIdentity(ctx)
	status, statusErr := d.client.GetSystemStatus(ctx)

	if identErr == nil {
		modelIdentity := models.SystemIdentity{
			DeviceID: d.device.ID, Name: identity.Name, Location: identity.Location, Description: identity.Description,
		}

		d.mu.Lock()
		verdict := detector.Diff(d.prevIdentity, modelIdentity)
		d.prevIdentity = modelIdentity
		d.mu.Unlock()

		if verdict != detector.VerdictUnchanged {
			row := store.DeviceIdentityRow{
				DeviceID: d.device.ID, Name: modelIdentity.Name, Location: modelIdentity.Location,
				Description: modelIdentity.Description, LastUpdated: time.Now().UTC(),
			}
			if err := d.store.UpsertDeviceIdentity(ctx, row); err != nil {
				logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to persist device identity")
			}
		}
		emit(ctx, d.sink, models.EventTypeSystemIdentity, d.device.ID, nil, nil, modelIdentity)
	}

	if statusErr == nil {
		date, parseErr := time.Parse(time.RFC3339, status.Date)
		if parseErr != nil {
			date = time.Now().UTC()
		}
		modelStatus := models.SystemStatus{
			DeviceID: d.device.ID, Date: date, Uptime: status.Uptime,
			CPULoadPercent: status.CPULoadPercent, CPULoadHigh: status.CPULoadHigh,
			CPUTemperature: status.CPUTemperature, CPUTempThreshold: status.CPUTempThreshold,
		}

		if err := d.store.InsertSystemStatus(ctx, modelStatus); err != nil {
			logging.Warn().Err(err).Int64("device", d.device.ID).Msg("failed to append system status")
		}
		emit(ctx, d.sink, models.EventTypeSystemStatus, d.device.ID, nil, nil, modelStatus)
	}

	switch {
	case identErr != nil && statusErr != nil:
		return fmt.Errorf("identity: %w; status: %w", identErr, statusErr)
	case identErr != nil:
		return errf("identity", identErr)
	case statusErr != nil:
		return errf("status", statusErr)
	}
	return nil
}
