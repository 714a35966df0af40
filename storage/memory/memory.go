// Package memory provides an in-memory implementation of all storage interfaces.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/mcpgate/oauth/instrumentation"
	"github.com/mcpgate/oauth/internal/util"
	"github.com/mcpgate/oauth/security"
	"github.com/mcpgate/oauth/storage"
)

const (
	// tokenIDLogLength is the number of characters to include when logging
	// access tokens and session IDs. Enough for correlation, not enough to replay.
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of all storage interfaces.
// It implements ClientStore, SessionStore, and TokenStore.
//
// Each concern is guarded by its own RWMutex. No method ever holds two of the
// locks at once, so operations on different concerns never contend and there
// is no lock-ordering hazard.
type Store struct {
	muClients  sync.RWMutex
	muSessions sync.RWMutex
	muTokens   sync.RWMutex

	clients  map[string]*storage.Client
	sessions map[string]*storage.Session
	tokens   map[string]*storage.IssuedToken

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic  atomic.Int64
	sessionsCountAtomic atomic.Int64
	tokensCountAtomic   atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger
}

// Compile-time interface checks to ensure Store implements all storage interfaces
var (
	_ storage.ClientStore  = (*Store)(nil)
	_ storage.SessionStore = (*Store)(nil)
	_ storage.TokenStore   = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, uses the default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		sessions:        make(map[string]*storage.Session),
		tokens:          make(map[string]*storage.IssuedToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst == nil {
		return
	}
	s.tracer = inst.Tracer("storage")
	s.meter = inst.Meter("storage")

	// Initialize atomic counters with current counts
	s.muClients.RLock()
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.muClients.RUnlock()
	s.muSessions.RLock()
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	s.muSessions.RUnlock()
	s.muTokens.RLock()
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	s.muTokens.RUnlock()

	// Register storage size callbacks using atomic counters (lock-free).
	// These give real-time visibility into store growth for capacity planning
	// and leak detection.
	err := inst.RegisterStorageSizeCallbacks(
		func() int64 { return s.clientsCountAtomic.Load() },
		func() int64 { return s.sessionsCountAtomic.Load() },
		func() int64 { return s.tokensCountAtomic.Load() },
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.ClientID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}

	s.muClients.Lock()
	defer s.muClients.Unlock()

	_, existed := s.clients[client.ClientID]
	s.clients[client.ClientID] = client

	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.muClients.RLock()
	defer s.muClients.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	return client, nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
// Uses constant-time operations to prevent timing attacks.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	// SECURITY: Always perform the same operations so response timing does not
	// reveal whether a client exists.

	// Pre-computed dummy hash for non-existent clients (bcrypt hash of "test")
	dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

	client, err := s.GetClient(ctx, clientID)

	hashToCompare := dummyHash
	if err == nil && client.ClientSecretHash != "" {
		hashToCompare = client.ClientSecretHash
	}

	// ALWAYS perform the bcrypt comparison, even for unknown clients
	bcryptErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(clientSecret))

	if err != nil {
		return fmt.Errorf("%w: invalid client credentials", storage.ErrInvalidClientSecret)
	}
	if bcryptErr != nil {
		return fmt.Errorf("%w: invalid client credentials", storage.ErrInvalidClientSecret)
	}

	return nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	s.muClients.RLock()
	defer s.muClients.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}

	return clients, nil
}

// ============================================================
// SessionStore Implementation
// ============================================================

// SaveSession inserts a session keyed by its SessionID.
// A colliding ID silently overwrites the previous session; IDs are generated
// from UUIDs so collisions are treated as negligible.
func (s *Store) SaveSession(ctx context.Context, session *storage.Session) error {
	ctx, span := s.startStorageSpan(ctx, "save_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_session", err, startTime)
	}()

	if session == nil {
		err = fmt.Errorf("session cannot be nil")
		return err
	}
	if session.SessionID == "" {
		err = fmt.Errorf("session ID cannot be empty")
		return err
	}

	s.muSessions.Lock()
	defer s.muSessions.Unlock()

	_, existed := s.sessions[session.SessionID]
	s.sessions[session.SessionID] = session

	if !existed {
		s.sessionsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved session",
		"session_id", util.SafeTruncate(session.SessionID, tokenIDLogLength),
		"client_id", session.ClientID)
	return nil
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	ctx, span := s.startStorageSpan(ctx, "get_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_session", err, startTime)
	}()

	s.muSessions.RLock()
	defer s.muSessions.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}

	// Lazy expiry check with clock skew grace period; the sweep may not have
	// run yet.
	if security.IsTokenExpired(session.ExpiresAt) {
		err = fmt.Errorf("%w: session expired", storage.ErrSessionExpired)
		return nil, err
	}

	return session, nil
}

// AttachProviderToken sets the upstream token on the named session
func (s *Store) AttachProviderToken(ctx context.Context, sessionID string, token *oauth2.Token) error {
	ctx, span := s.startStorageSpan(ctx, "attach_provider_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "attach_provider_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("token cannot be nil")
		return err
	}

	s.muSessions.Lock()
	defer s.muSessions.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		err = storage.ErrSessionNotFound
		return err
	}

	session.ProviderToken = token
	s.logger.Debug("Attached provider token to session",
		"session_id", util.SafeTruncate(sessionID, tokenIDLogLength))
	return nil
}

// ConsumeSession atomically retrieves a session and marks it consumed.
func (s *Store) ConsumeSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_session", err, startTime)
	}()

	s.muSessions.Lock() // MUST use write lock for atomic check-and-set
	defer s.muSessions.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}

	if security.IsTokenExpired(session.ExpiresAt) {
		err = fmt.Errorf("%w: session expired", storage.ErrSessionExpired)
		return nil, err
	}

	// ATOMIC check-and-set: only one caller can pass this check.
	if session.Consumed {
		// SECURITY: return the session to enable replay detection upstream
		err = storage.ErrSessionConsumed
		return session, err
	}

	session.Consumed = true
	s.logger.Debug("Marked session as consumed",
		"session_id", util.SafeTruncate(sessionID, tokenIDLogLength))

	return session, nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken records an issued token keyed by its access token string
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.IssuedToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil {
		err = fmt.Errorf("token cannot be nil")
		return err
	}
	if token.AccessToken == "" {
		err = fmt.Errorf("access token cannot be empty")
		return err
	}

	s.muTokens.Lock()
	defer s.muTokens.Unlock()

	_, existed := s.tokens[token.AccessToken]
	s.tokens[token.AccessToken] = token

	if !existed {
		s.tokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.AccessToken, tokenIDLogLength),
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken retrieves an issued token; used by the bearer gate
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (*storage.IssuedToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.muTokens.RLock()
	defer s.muTokens.RUnlock()

	token, ok := s.tokens[accessToken]
	if !ok {
		err = storage.ErrTokenNotFound
		return nil, err
	}

	if security.IsTokenExpired(token.ExpiresAt) {
		err = fmt.Errorf("%w: token expired", storage.ErrTokenNotFound)
		return nil, err
	}

	return token, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup sweeps expired sessions and tokens. Clients are never evicted;
// registrations are immutable and unrevoked for the process lifetime.
func (s *Store) cleanup() {
	cleaned := 0

	s.muSessions.Lock()
	for sessionID, session := range s.sessions {
		if security.IsTokenExpired(session.ExpiresAt) {
			delete(s.sessions, sessionID)
			s.sessionsCountAtomic.Add(-1)
			cleaned++
		}
	}
	s.muSessions.Unlock()

	s.muTokens.Lock()
	for accessToken, token := range s.tokens {
		if security.IsTokenExpired(token.ExpiresAt) {
			delete(s.tokens, accessToken)
			s.tokensCountAtomic.Add(-1)
			cleaned++
		}
	}
	s.muTokens.Unlock()

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
