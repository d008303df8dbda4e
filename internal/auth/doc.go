// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

/*
Package auth provides bearer-token verification for the fleet core's HTTP
and WebSocket surfaces.

This core never issues tokens: subjects and their permission lists come
from an out-of-scope identity store. JWTManager only parses and validates
tokens signed with a shared HMAC secret, extracting the subject and
permission claims the ingest, admin, and WebSocket-upgrade handlers use
for authorization decisions.

Usage Example:

	import (
	    "github.com/tomtom215/fleetd/internal/auth"
	    "github.com/tomtom215/fleetd/internal/config"
	)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
	    log.Fatal(err)
	}

	claims, err := jwtManager.ValidateToken(tokenString)
	if err != nil {
	    // reject the connection
	}
	if !claims.HasPermission("subscribe") {
	    // reject the connection
	}

Security Notes:

  - Signing method is restricted to HMAC (HS256) to prevent
    algorithm-confusion attacks against the "none" or RS256 methods.
  - JWTSecret should be at least 32 characters in production; this is
    enforced by config.Validate when Environment is "production".
  - GenerateToken exists for test harnesses and local development tokens
    only; it is not wired to any client-facing endpoint.

See Also:

  - internal/api: HTTP/WebSocket handlers that call ValidateToken
  - internal/config: SecurityConfig carrying the shared secret
  - internal/logging: SecurityLogger for token validation audit events
*/
package auth
