// Package security provides security-related functionality for the OAuth
// server: rate limiting, audit logging, client IP extraction, request ID
// propagation, security headers, and clock-skew-tolerant expiry checks.
//
// # Rate Limiting
//
// RateLimiter provides per-identifier rate limiting using a token bucket
// with automatic memory management through LRU eviction. To prevent
// unbounded growth under distributed attacks, a configurable maximum number
// of tracked identifiers is enforced; when the limit is reached the least
// recently used entries are evicted first, so legitimate repeat callers tend
// to stay resident while one-shot attack IPs are dropped.
//
// Default configuration: 10,000 max entries, cleanup every 5 minutes,
// entries idle for 30 minutes removed.
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
//
// GetStats exposes entry counts, eviction totals, and memory pressure for
// monitoring.
//
// # Audit Logging
//
// Auditor emits structured slog events for the authorization flow (request,
// approval, denial, code exchange, replay detection, token issuance, client
// registration, auth failures, rate limit violations). Session identifiers
// are SHA-256 hashed before logging.
package security
