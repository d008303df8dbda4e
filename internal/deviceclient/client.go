// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package deviceclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/metrics"
	"github.com/tomtom215/fleetd/internal/models"
)

// maxErrorBodySize bounds how much of a failed response body is read
// for error reporting, preventing unbounded memory use on a misbehaving
// device.
const maxErrorBodySize = 64 * 1024

// Pool owns the shared HTTP transport and hands out one Client per
// device, each with its own circuit breaker keyed by device host.
type Pool struct {
	cfg       config.DeviceClientConfig
	transport *http.Transport

	mu      sync.Mutex
	clients map[int64]*Client
}

// NewPool builds a device client pool with a shared transport sized per
// cfg. MaxIdleConnsPerHost and IdleConnTimeout bound how many idle
// connections are retained per device host.
func NewPool(cfg config.DeviceClientConfig) *Pool {
	return &Pool{
		cfg: cfg,
		transport: &http.Transport{
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		},
		clients: make(map[int64]*Client),
	}
}

// Client returns the Client for device, creating and caching it on
// first use. Safe for concurrent use.
func (p *Pool) Client(device models.Device) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[device.ID]; ok {
		return c
	}

	c := &Client{
		baseURL:  "http://" + device.Address,
		username: device.Username,
		secret:   device.Secret,
		http: &http.Client{
			Transport: p.transport,
			Timeout:   p.cfg.RequestTimeout,
		},
		breaker: newBreaker(device.Address, p.cfg),
	}
	p.clients[device.ID] = c
	return c
}

// Close releases idle connections held by the pool's shared transport.
func (p *Pool) Close() {
	p.transport.CloseIdleConnections()
}

// Client talks to a single device's HTTP API, all calls going through
// the device's own circuit breaker.
type Client struct {
	baseURL  string
	username string
	secret   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[any]
}

// doEnvelope issues an HTTP request against endpoint and unwraps the
// device's `result` envelope into T. This is the single generic helper
// every endpoint method goes through, grounded on the teacher's
// makeRequest/envelope-unwrap pattern.
func doEnvelope[T any](ctx context.Context, c *Client, method, endpoint string, body io.Reader) (T, error) {
	var zero T
	device := c.breakerName()

	result, err := execute(device, c.breaker, func() (T, error) {
		req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
		if reqErr != nil {
			return zero, fmt.Errorf("building request for %s: %w", endpoint, reqErr)
		}
		req.SetBasicAuth(c.username, c.secret)
		if method == http.MethodPost {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, doErr := c.http.Do(req)
		duration := time.Since(start)
		if doErr != nil {
			metrics.RecordDeviceRequest(endpoint, "0", duration, string(Classify(doErr)))
			return zero, fmt.Errorf("request to %s: %w", endpoint, doErr)
		}
		defer resp.Body.Close()

		statusCode := fmt.Sprintf("%d", resp.StatusCode)

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			errBody := readBodyForError(resp.Body)
			statusErr := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: errBody}
			metrics.RecordDeviceRequest(endpoint, statusCode, duration, string(Classify(statusErr)))
			return zero, statusErr
		}

		var env envelope[T]
		if decodeErr := json.NewDecoder(resp.Body).Decode(&env); decodeErr != nil {
			metrics.RecordDeviceRequest(endpoint, statusCode, duration, string(models.ErrorKindSchema))
			return zero, fmt.Errorf("decoding %s response: %w", endpoint, decodeErr)
		}

		metrics.RecordDeviceRequest(endpoint, statusCode, duration, "")
		return env.Result, nil
	})

	return result, err
}

// breakerName identifies this client's device for breaker/metric labels.
func (c *Client) breakerName() string {
	return c.baseURL
}

func readBodyForError(r io.Reader) []byte {
	limited := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}

// GetChannels retrieves every channel and its publishers.
func (c *Client) GetChannels(ctx context.Context) ([]wireChannel, error) {
	return doEnvelope[[]wireChannel](ctx, c, http.MethodGet, "/api/v2.0/channels", nil)
}

// GetPublishersStatus retrieves publisher status for a single channel.
func (c *Client) GetPublishersStatus(ctx context.Context, channel int) ([]wirePublisher, error) {
	endpoint := fmt.Sprintf("/api/v2.0/channels/%d/publishers/status", channel)
	return doEnvelope[[]wirePublisher](ctx, c, http.MethodGet, endpoint, nil)
}

// GetPublisherName retrieves a publisher's human-assigned name. This
// endpoint is optional and never fails the caller: a 404 or schema
// failure yields a synthetic "Publisher <id>" name instead of an error,
// per the error taxonomy for optional endpoints.
func (c *Client) GetPublisherName(ctx context.Context, channel, publisher int) string {
	endpoint := fmt.Sprintf("/api/v2.0/channels/%d/publishers/%d/name", channel, publisher)
	name, err := doEnvelope[string](ctx, c, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Publisher %d", publisher)
	}
	return name
}

// ControlAction is the lifecycle command sent to a publisher or recorder.
type ControlAction string

const (
	ControlStart ControlAction = "start"
	ControlStop  ControlAction = "stop"
)

// ControlPublisher starts or stops a publisher.
func (c *Client) ControlPublisher(ctx context.Context, channel, publisher int, action ControlAction) error {
	endpoint := fmt.Sprintf("/api/v2.0/channels/%d/publishers/%d/control/%s", channel, publisher, action)
	result, err := doEnvelope[wireControlResult](ctx, c, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("device rejected publisher control command: %+v", result)
	}
	return nil
}

// GetRecordersStatus retrieves every recorder's status. This endpoint
// is optional: a 404 is swallowed and an empty list returned.
func (c *Client) GetRecordersStatus(ctx context.Context) ([]wireRecorder, error) {
	recorders, err := doEnvelope[[]wireRecorder](ctx, c, http.MethodGet, "/api/v2.0/recorders/status", nil)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return recorders, nil
}

// ControlRecorder starts or stops a recorder.
func (c *Client) ControlRecorder(ctx context.Context, recorder int, action ControlAction) error {
	endpoint := fmt.Sprintf("/api/v2.0/recorders/%d/control/%s", recorder, action)
	result, err := doEnvelope[wireControlResult](ctx, c, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("device rejected recorder control command: %+v", result)
	}
	return nil
}

// GetSystemIdentity retrieves the device's rarely-changing identity.
func (c *Client) GetSystemIdentity(ctx context.Context) (wireSystemIdentity, error) {
	return doEnvelope[wireSystemIdentity](ctx, c, http.MethodGet, "/api/v2.0/system/ident", nil)
}

// GetSystemStatus retrieves the device's current CPU/uptime/temperature.
func (c *Client) GetSystemStatus(ctx context.Context) (wireSystemStatus, error) {
	return doEnvelope[wireSystemStatus](ctx, c, http.MethodGet, "/api/v2.0/system/status", nil)
}

// GetPreview fetches a channel's current preview image. Unlike the
// other endpoints, the response body is the raw image, not a `result`
// envelope, so this bypasses doEnvelope.
func (c *Client) GetPreview(ctx context.Context, channel int, opts PreviewOptions) (Preview, error) {
	device := c.breakerName()
	endpoint := fmt.Sprintf("/api/v2.0/channels/%d/preview", channel)

	return execute(device, c.breaker, func() (Preview, error) {
		q := url.Values{}
		if opts.Resolution != "" {
			q.Set("resolution", opts.Resolution)
		}
		if opts.Format != "" {
			q.Set("format", opts.Format)
		}
		q.Set("keep_aspect_ratio", fmt.Sprintf("%t", opts.KeepAspectRatio))

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+q.Encode(), nil)
		if reqErr != nil {
			return Preview{}, fmt.Errorf("building request for %s: %w", endpoint, reqErr)
		}
		req.SetBasicAuth(c.username, c.secret)

		start := time.Now()
		resp, doErr := c.http.Do(req)
		duration := time.Since(start)
		if doErr != nil {
			metrics.RecordDeviceRequest(endpoint, "0", duration, string(Classify(doErr)))
			return Preview{}, fmt.Errorf("request to %s: %w", endpoint, doErr)
		}
		defer resp.Body.Close()

		statusCode := fmt.Sprintf("%d", resp.StatusCode)
		if resp.StatusCode != http.StatusOK {
			errBody := readBodyForError(resp.Body)
			statusErr := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: errBody}
			metrics.RecordDeviceRequest(endpoint, statusCode, duration, string(Classify(statusErr)))
			return Preview{}, statusErr
		}

		var buf bytes.Buffer
		if _, copyErr := io.Copy(&buf, resp.Body); copyErr != nil {
			metrics.RecordDeviceRequest(endpoint, statusCode, duration, string(models.ErrorKindTransient))
			return Preview{}, fmt.Errorf("reading preview body: %w", copyErr)
		}

		metrics.RecordDeviceRequest(endpoint, statusCode, duration, "")
		return Preview{ContentType: resp.Header.Get("Content-Type"), Data: buf.Bytes()}, nil
	})
}
