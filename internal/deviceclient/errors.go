// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package deviceclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/tomtom215/fleetd/internal/models"
)

// StatusError wraps a non-2xx HTTP response from a device, carrying the
// status code so callers can distinguish 404 (optional endpoint, safe to
// swallow) from 401/5xx (must be surfaced).
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("device returned status %d for %s", e.StatusCode, e.Endpoint)
}

// IsNotFound reports whether err is a StatusError for HTTP 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Classify maps an error observed by the Device Client into the closed
// models.ErrorKind enum shared with the Preview Image Service, per the
// error taxonomy every consumer reports against uniformly.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized:
			return models.ErrorKindUnauthorized
		case statusErr.StatusCode == http.StatusNotFound:
			return models.ErrorKindNotFound
		case statusErr.StatusCode >= 500:
			return models.ErrorKindServerError
		default:
			return models.ErrorKindOther
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ErrorKindDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.ErrorKindTransient
	}

	var jsonErr *json.SyntaxError
	var jsonTypeErr *json.UnmarshalTypeError
	if errors.As(err, &jsonErr) || errors.As(err, &jsonTypeErr) {
		return models.ErrorKindSchema
	}

	if errors.Is(err, errCircuitOpen) {
		return models.ErrorKindTransient
	}

	return models.ErrorKindOther
}
