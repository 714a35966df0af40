package security

// Event type constants for security audit logging.
// These constants keep event names consistent across the codebase.
const (
	// Authorization flow events

	// EventAuthorizationRequested is logged when an authorization request passes client validation
	EventAuthorizationRequested = "authorization_requested"

	// EventAuthorizationApproved is logged when a user approves an authorization request
	EventAuthorizationApproved = "authorization_approved"

	// EventAuthorizationDenied is logged when a user rejects an authorization request
	EventAuthorizationDenied = "authorization_denied"

	// EventCodeExchanged is logged when an authorization code is exchanged for tokens
	EventCodeExchanged = "code_exchanged"

	// EventCodeReplayDetected is logged when an already-consumed code is presented again
	EventCodeReplayDetected = "code_replay_detected"

	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// Client registration events

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// Security violation events

	// EventAuthFailure is logged when authentication fails (unknown client, bad bearer token)
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"
)
