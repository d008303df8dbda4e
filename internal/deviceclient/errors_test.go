// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package deviceclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/fleetd/internal/models"
)

func TestClassify_StatusError(t *testing.T) {
	tests := []struct {
		name string
		code int
		want models.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, models.ErrorKindUnauthorized},
		{"not found", http.StatusNotFound, models.ErrorKindNotFound},
		{"server error", http.StatusInternalServerError, models.ErrorKindServerError},
		{"bad gateway", http.StatusBadGateway, models.ErrorKindServerError},
		{"teapot", http.StatusTeapot, models.ErrorKindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &StatusError{Endpoint: "/x", StatusCode: tt.code}
			if got := Classify(err); got != tt.want {
				t.Errorf("Classify(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestClassify_DNSError(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "device.invalid", IsNotFound: true}
	if got := Classify(err); got != models.ErrorKindDNS {
		t.Errorf("Classify(dns) = %q, want %q", got, models.ErrorKindDNS)
	}
}

func TestClassify_TimeoutError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:0", nil)
	_, err := http.DefaultClient.Do(req)
	if err == nil {
		t.Fatal("expected request error")
	}
	if got := Classify(err); got != models.ErrorKindTransient {
		t.Errorf("Classify(timeout) = %q, want %q", got, models.ErrorKindTransient)
	}
}

func TestClassify_SchemaError(t *testing.T) {
	var v struct{ X int }
	err := json.Unmarshal([]byte(`{"x": "not a number"}`), &v)
	if err == nil {
		t.Fatal("expected unmarshal error")
	}
	if got := Classify(err); got != models.ErrorKindSchema {
		t.Errorf("Classify(schema) = %q, want %q", got, models.ErrorKindSchema)
	}
}

func TestClassify_CircuitOpen(t *testing.T) {
	if got := Classify(errCircuitOpen); got != models.ErrorKindTransient {
		t.Errorf("Classify(circuitOpen) = %q, want %q", got, models.ErrorKindTransient)
	}
}

func TestClassify_Nil(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("Classify(nil) = %q, want empty", got)
	}
}

func TestClassify_Other(t *testing.T) {
	if got := Classify(errors.New("mystery")); got != models.ErrorKindOther {
		t.Errorf("Classify(other) = %q, want %q", got, models.ErrorKindOther)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(&StatusError{StatusCode: http.StatusNotFound}) {
		t.Error("expected IsNotFound true for 404")
	}
	if IsNotFound(&StatusError{StatusCode: http.StatusInternalServerError}) {
		t.Error("expected IsNotFound false for 500")
	}
	if IsNotFound(errors.New("not a status error")) {
		t.Error("expected IsNotFound false for unrelated error")
	}
}
