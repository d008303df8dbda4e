// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/deviceclient"
	"github.com/tomtom215/fleetd/internal/models"
	"github.com/tomtom215/fleetd/internal/store"
)

// newTestDeviceServer stands up a fake device HTTP API returning one
// channel with one publisher, one recorder, and a fixed identity/status,
// enough for a full tickFast/tickMedium/tickSlow pass to succeed.
func newTestDeviceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v2.0/channels", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"result": []map[string]any{
				{
					"id": 1,
					"publishers": []map[string]any{
						{"id": 1, "type": "rtsp", "status": map[string]any{"state": "started", "started": true, "is_configured": true}},
					},
				},
			},
		})
	})
	mux.HandleFunc("/api/v2.0/channels/1/publishers/status", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"result": []map[string]any{
				{"id": 1, "type": "rtsp", "status": map[string]any{"state": "started", "started": true, "is_configured": true}},
			},
		})
	})
	mux.HandleFunc("/api/v2.0/channels/1/publishers/1/name", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{"result": "Main Feed"})
	})
	mux.HandleFunc("/api/v2.0/recorders/status", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"result": []map[string]any{
				{"id": 1, "name": "rec-1", "state": "recording", "duration": 100, "active": 1, "total": 1, "multisource": false},
			},
		})
	})
	mux.HandleFunc("/api/v2.0/system/ident", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{"result": map[string]any{"name": "dev-1", "location": "rack-1", "description": "test device"}})
	})
	mux.HandleFunc("/api/v2.0/system/status", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"result": map[string]any{
				"date": time.Now().UTC().Format(time.RFC3339), "uptime": 1000,
				"cpuload_percent": 12.5, "cpuload_high": false,
				"cpu_temperature": 40.0, "cpu_temp_threshold": 80.0,
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeResult(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func testDeviceClientConfig() config.DeviceClientConfig {
	return config.DeviceClientConfig{
		RequestTimeout:       5 * time.Second,
		MaxIdleConnsPerHost:  5,
		IdleConnTimeout:      30 * time.Second,
		BreakerMinRequests:   1000, // never trips during a short test
		BreakerFailureRatio:  0.9,
		BreakerOpenTimeout:   30 * time.Second,
		BreakerCountInterval: time.Minute,
	}
}

func testPollerConfig() config.PollerConfig {
	return config.PollerConfig{
		FastInterval:           time.Hour,
		MediumInterval:         time.Hour,
		SlowInterval:           time.Hour,
		BackoffInitial:         time.Second,
		BackoffMax:             time.Minute,
		BackoffMultiplier:      2.0,
		ErrorThreshold:         10,
		ReconciliationInterval: time.Hour,
	}
}

func newTestDeviceLoop(t *testing.T, srv *httptest.Server, st store.Store, sink EventSink) *deviceLoop {
	t.Helper()
	pool := deviceclient.NewPool(testDeviceClientConfig())
	device := models.Device{ID: 1, Address: srv.Listener.Addr().String(), Username: "admin", Secret: "secret"}
	client := pool.Client(device)
	return newDeviceLoop(device, client, st, sink, testPollerConfig())
}

func TestDeviceLoop_ForceTick_Succeeds(t *testing.T) {
	srv := newTestDeviceServer(t)
	st := newFakeStore()
	sink := newFakeSink()
	loop := newTestDeviceLoop(t, srv, st, sink)

	err := loop.forceTick(context.Background())
	require.NoError(t, err)

	assert.Greater(t, sink.count(), 0)
	assert.NotEmpty(t, st.publisherRows)
	assert.NotEmpty(t, st.recorderRows)
	assert.NotEmpty(t, st.identityRows)
	assert.NotEmpty(t, st.systemStatus)
}

func TestDeviceLoop_ClearCache_ResetsSnapshots(t *testing.T) {
	srv := newTestDeviceServer(t)
	st := newFakeStore()
	sink := newFakeSink()
	loop := newTestDeviceLoop(t, srv, st, sink)

	require.NoError(t, loop.forceTick(context.Background()))

	loop.mu.Lock()
	assert.NotNil(t, loop.prevChannels)
	assert.NotNil(t, loop.prevIdentity)
	loop.mu.Unlock()

	loop.clearCache()

	loop.mu.Lock()
	defer loop.mu.Unlock()
	assert.Nil(t, loop.prevChannels)
	assert.Nil(t, loop.prevIdentity)
	assert.Nil(t, loop.prevRecorders)
	assert.Nil(t, loop.prevStatus)
	assert.Empty(t, loop.prevPublisherStatus)
	assert.Empty(t, loop.prevPublisherNames)
}

func TestDeviceLoop_ForceTick_PartialFailureIsJoinedAndReported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2.0/channels", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{"result": []map[string]any{}})
	})
	mux.HandleFunc("/api/v2.0/recorders/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v2.0/system/ident", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v2.0/system/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	st := newFakeStore()
	sink := newFakeSink()
	loop := newTestDeviceLoop(t, srv, st, sink)

	err := loop.forceTick(context.Background())
	require.Error(t, err)
}
