// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package auth

import (
	"testing"
	"time"

	"github.com/tomtom215/fleetd/internal/config"
)

func TestNewJWTManager(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.SecurityConfig
		wantErr bool
	}{
		{
			name:    "valid secret",
			cfg:     &config.SecurityConfig{JWTSecret: "this_is_a_very_long_secret_key_with_32_plus_characters"},
			wantErr: false,
		},
		{
			name:    "empty secret",
			cfg:     &config.SecurityConfig{JWTSecret: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewJWTManager(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("NewJWTManager() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("NewJWTManager() unexpected error = %v", err)
				return
			}
			if manager == nil {
				t.Error("NewJWTManager() returned nil manager")
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := &config.SecurityConfig{JWTSecret: "this_is_a_very_long_secret_key_for_testing_purposes_12345"}

	manager, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	tests := []struct {
		name        string
		subject     string
		permissions []string
	}{
		{name: "admin subject", subject: "device-fleet-12345678", permissions: []string{"subscribe", "control"}},
		{name: "read-only subject", subject: "dashboard-87654321", permissions: []string{"subscribe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := manager.GenerateToken(tt.subject, tt.permissions, time.Hour)
			if err != nil {
				t.Errorf("GenerateToken() error = %v", err)
				return
			}
			if token == "" {
				t.Error("GenerateToken() returned empty token")
				return
			}

			claims, err := manager.ValidateToken(token)
			if err != nil {
				t.Errorf("ValidateToken() error = %v", err)
				return
			}
			if claims == nil {
				t.Error("ValidateToken() returned nil claims")
				return
			}
			if claims.Subject != tt.subject {
				t.Errorf("ValidateToken() subject = %v, want %v", claims.Subject, tt.subject)
			}
			for _, perm := range tt.permissions {
				if !claims.HasPermission(perm) {
					t.Errorf("ValidateToken() claims missing permission %q", perm)
				}
			}
		})
	}
}

func TestValidateToken_Invalid(t *testing.T) {
	cfg := &config.SecurityConfig{JWTSecret: "this_is_a_very_long_secret_key_for_testing_purposes_12345"}

	manager, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "invalid token format", token: "invalid.token.format"},
		{name: "empty token", token: ""},
		{name: "malformed token", token: "not_a_jwt_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := manager.ValidateToken(tt.token)
			if err == nil {
				t.Error("ValidateToken() expected error for invalid token, got nil")
			}
			if claims != nil {
				t.Error("ValidateToken() expected nil claims for invalid token")
			}
		})
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	cfg1 := &config.SecurityConfig{JWTSecret: "first_secret_key_that_is_long_enough_for_testing_12345"}
	cfg2 := &config.SecurityConfig{JWTSecret: "second_secret_key_that_is_different_from_first_12345"}

	manager1, err := NewJWTManager(cfg1)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	manager2, err := NewJWTManager(cfg2)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	token, err := manager1.GenerateToken("device-fleet", []string{"subscribe"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := manager2.ValidateToken(token)
	if err == nil {
		t.Error("ValidateToken() expected error when using wrong secret, got nil")
	}
	if claims != nil {
		t.Error("ValidateToken() expected nil claims when using wrong secret")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	cfg := &config.SecurityConfig{JWTSecret: "secret_key_for_expiration_test_that_is_long_enough_12345"}

	manager, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}

	token, err := manager.GenerateToken("device-fleet", []string{"subscribe"}, -1*time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := manager.ValidateToken(token)
	if err == nil {
		t.Error("ValidateToken() expected error for expired token, got nil")
	}
	if claims != nil {
		t.Error("ValidateToken() expected nil claims for expired token")
	}
}

func TestClaims_HasPermission(t *testing.T) {
	claims := &Claims{Permissions: []string{"subscribe", "control"}}

	if !claims.HasPermission("subscribe") {
		t.Error("expected HasPermission(subscribe) to be true")
	}
	if claims.HasPermission("admin") {
		t.Error("expected HasPermission(admin) to be false")
	}
}
