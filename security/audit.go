// Package security provides security features for the OAuth server including
// rate limiting, audit logging, request IDs, and secure header management.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	SessionID string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed identifiers
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"session_id_hash", hashForLogging(event.SessionID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogAuthorizationRequested logs when an authorization request passes client validation
func (a *Auditor) LogAuthorizationRequested(clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationRequested,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogAuthorizationApproved logs when a user approves an authorization request
func (a *Auditor) LogAuthorizationApproved(sessionID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationApproved,
		SessionID: sessionID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogAuthorizationDenied logs when a user rejects an authorization request
func (a *Auditor) LogAuthorizationDenied(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationDenied,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogCodeExchanged logs a successful authorization code exchange
func (a *Auditor) LogCodeExchanged(sessionID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeExchanged,
		SessionID: sessionID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogCodeReplayDetected logs an attempt to redeem an already-consumed code
func (a *Auditor) LogCodeReplayDetected(sessionID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventCodeReplayDetected,
		SessionID: sessionID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogTokenIssued logs when an access token is issued
func (a *Auditor) LogTokenIssued(sessionID, clientID, ipAddress, scope string) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		SessionID: sessionID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogClientRegistered logs when a new client is registered
func (a *Auditor) LogClientRegistered(clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventClientRegistered,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogAuthFailure logs an authentication failure
func (a *Auditor) LogAuthFailure(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
