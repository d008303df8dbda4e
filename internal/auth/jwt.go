// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tomtom215/fleetd/internal/config"
)

// Claims carries the bearer token identity and permission list this core
// validates. Tokens are minted by an out-of-scope identity store; this
// package only ever verifies them.
type Claims struct {
	Subject     string   `json:"sub"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the claims grant the named permission.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// JWTManager validates bearer tokens signed with the configured shared
// secret. It also exposes GenerateToken for minting test/dev tokens; the
// running core never issues tokens to real clients.
type JWTManager struct {
	secret []byte
}

// NewJWTManager creates a new JWT token manager with the configured secret.
//
// Returns an error if JWTSecret is empty; production deployments should
// additionally enforce a 32-character minimum via config.Validate.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required but was empty")
	}

	return &JWTManager{secret: []byte(cfg.JWTSecret)}, nil
}

// GenerateToken creates a signed token for the given subject and permission
// list, valid for ttl. Intended for test harnesses and local development;
// production bearer tokens come from the identity store out of scope here.
func (m *JWTManager) GenerateToken(subject string, permissions []string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Subject:     subject,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a bearer token string and extracts its claims.
//
// Rejects tokens that are malformed, expired, not yet valid, or signed
// with anything other than HMAC (prevents algorithm-confusion attacks).
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
