// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package api

import "testing"

func TestNewValidator_IPv4Strict(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"valid address", "192.168.1.1", true},
		{"valid zero address", "0.0.0.0", true},
		{"valid broadcast", "255.255.255.255", true},
		{"leading zero octet", "010.0.0.1", false},
		{"octet out of range", "256.0.0.1", false},
		{"too few octets", "192.168.1", false},
		{"hostname not address", "example.com", false},
		{"ipv6 not accepted", "::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			type target struct {
				Addr string `validate:"ipv4strict"`
			}
			err := v.Struct(target{Addr: tt.value})
			got := err == nil
			if got != tt.want {
				t.Errorf("ipv4strict(%q) valid = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
