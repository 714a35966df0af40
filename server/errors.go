package server

import "errors"

// Sentinel errors returned by flow operations. The HTTP layer maps these to
// the corresponding OAuth error responses; anything else becomes server_error.
var (
	// ErrInvalidGrant indicates the authorization code is structurally
	// invalid, unknown, expired, or already redeemed.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrInvalidClient indicates the client_id / redirect_uri pair failed
	// validation or client authentication failed.
	ErrInvalidClient = errors.New("invalid client")
)
