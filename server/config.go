package server

import (
	"log/slog"
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (public base URL).
	// All advertised endpoints in the discovery document are derived from it.
	Issuer string

	// SessionTTL is how long pending authorization sessions (and their
	// codes) remain redeemable
	SessionTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long issued access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// When false, uses direct connection IP (secure by default)
	// Default: false
	TrustProxy bool // default: false

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Used with TrustProxy to correctly extract client IP from X-Forwarded-For
	// Example: If you have 2 proxies (CloudFlare + nginx), set this to 2
	// Default: 1
	TrustedProxyCount int // default: 1

	// ClockSkewGracePeriod is the grace period for token expiration checks (in seconds)
	// This prevents false expiration errors due to time synchronization issues
	// Default: 5 seconds
	ClockSkewGracePeriod int64 // seconds, default: 5

	// SupportedScopes lists the scopes advertised in the discovery document
	// Default: ["profile", "email"]
	SupportedScopes []string

	// DisableBootstrapClient skips seeding the built-in development client
	// at construction. The bootstrap client exists so local MCP clients can
	// complete a flow without dynamic registration first.
	// Default: false (bootstrap client is seeded)
	DisableBootstrapClient bool
}

// applyDefaults fills in zero-valued configuration fields.
// Warnings for settings that weaken security are logged rather than rejected.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config.Issuer == "" {
		config.Issuer = "http://localhost:8080"
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = 600 // 10 minutes
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600 // 1 hour
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}
	if config.ClockSkewGracePeriod == 0 {
		config.ClockSkewGracePeriod = 5
	}
	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = []string{"profile", "email"}
	}

	if config.TrustProxy {
		logger.Warn("Proxy header trust enabled; ensure the server is only reachable through the configured proxies",
			"trusted_proxy_count", config.TrustedProxyCount)
	}

	return config
}
