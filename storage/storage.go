// Package storage defines interfaces for persisting OAuth clients, authorization
// sessions, and issued access tokens. Implementations may back these with memory,
// Redis, or databases; the in-memory implementation lives in storage/memory.
package storage

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// Sentinel errors returned by store implementations. Callers should match
// with errors.Is since implementations may wrap them with context.
var (
	// ErrClientNotFound indicates no client is registered under the given ID
	ErrClientNotFound = errors.New("client not found")

	// ErrSessionNotFound indicates no authorization session exists for the given ID
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionConsumed indicates the session's authorization code was already redeemed
	ErrSessionConsumed = errors.New("session already consumed")

	// ErrSessionExpired indicates the session passed its expiry before redemption
	ErrSessionExpired = errors.New("session expired")

	// ErrTokenNotFound indicates no issued token matches the given access token
	ErrTokenNotFound = errors.New("token not found")

	// ErrInvalidClientSecret indicates client secret validation failed
	ErrInvalidClientSecret = errors.New("invalid client secret")
)

// ClientStore defines the interface for managing OAuth client registrations.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret validates a client's secret against the stored hash
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// SessionStore defines the interface for managing in-flight authorization
// sessions. A session is created on user approval and correlates the consent
// step with the later token exchange.
type SessionStore interface {
	// SaveSession inserts a session keyed by its SessionID.
	// A colliding ID silently overwrites the previous session.
	SaveSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// AttachProviderToken sets the upstream token on the named session.
	// Returns ErrSessionNotFound if the session does not exist. A second
	// call silently overwrites the previous token.
	AttachProviderToken(ctx context.Context, sessionID string, token *oauth2.Token) error

	// ConsumeSession atomically retrieves a session and marks it consumed,
	// so the authorization code derived from it can be redeemed at most once.
	// Returns the session together with ErrSessionConsumed when it was
	// already redeemed, allowing callers to detect replay.
	// SECURITY: This operation MUST be atomic to prevent concurrent redemption.
	ConsumeSession(ctx context.Context, sessionID string) (*Session, error)
}

// TokenStore defines the interface for issued access tokens.
type TokenStore interface {
	// SaveAccessToken records an issued token keyed by its access token string
	SaveAccessToken(ctx context.Context, token *IssuedToken) error

	// GetAccessToken retrieves an issued token; used by the bearer gate
	GetAccessToken(ctx context.Context, accessToken string) (*IssuedToken, error)
}

// Client represents a registered OAuth client descriptor.
// Descriptors are immutable after registration and are never revoked.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash
	RedirectURI      string // single URI, matched by substring containment
	ClientName       string
	Scopes           []string
	CreatedAt        time.Time
}

// Session represents one authorization attempt from approval to exchange.
// ProviderToken transitions from nil to non-nil exactly once, before a token
// exchange may succeed.
type Session struct {
	SessionID     string
	ClientID      string
	Scope         string
	State         string // client-supplied opaque echo value
	ProviderToken *oauth2.Token
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Consumed      bool
}

// IssuedToken represents a server-issued access token, created exactly once
// per redeemed authorization code. ExpiresIn is the advisory lifetime
// reported to the client; ExpiresAt drives eviction.
type IssuedToken struct {
	AccessToken   string
	TokenType     string
	ExpiresIn     int64
	RefreshToken  string
	Scope         string
	ClientID      string
	ProviderToken *oauth2.Token
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
