// Package server implements the core OAuth 2.0 authorization server logic.
//
// This package provides the authorization-code flow for an MCP workspace
// server: consent handling, code issuance, token exchange, dynamic client
// registration (RFC 7591), and bearer token validation. It coordinates
// between injected storage backends and security features.
//
// The Server type delegates to specialized modules:
//   - Client, session, and token storage (storage package)
//   - Security features (security package)
//   - OpenTelemetry metrics and tracing (instrumentation package)
//
// Authorization codes are single use. This deviates from servers that leave
// codes redeemable until expiry: the first exchange consumes the session,
// and any later attempt with the same code fails with invalid_grant and is
// reported as a replay.
//
// Example usage:
//
//	store := memory.New()
//
//	config := &server.Config{
//	    Issuer: "https://auth.example.com",
//	}
//
//	srv, err := server.New(store, store, store, config, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
