package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcpgate/oauth/instrumentation"
	"github.com/mcpgate/oauth/security"
	"github.com/mcpgate/oauth/storage"
)

// Bootstrap client seeded at construction so local MCP clients can run a
// flow before registering dynamically.
const (
	BootstrapClientID          = "mcp-client"
	BootstrapClientSecret      = "mcp-client-secret"
	BootstrapClientRedirectURI = "http://localhost:8080/callback"
)

// bootstrapClientScopes returns a fresh copy so callers cannot mutate the
// seeded client's scope list.
func bootstrapClientScopes() []string {
	return []string{"profile", "email"}
}

// Server implements the OAuth 2.0 authorization server logic.
// It coordinates the authorization-code flow using injected storage backends.
type Server struct {
	clientStore  storage.ClientStore
	sessionStore storage.SessionStore
	tokenStore   storage.TokenStore

	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter // IP-based rate limiter
	Logger          *slog.Logger
	Config          *Config
	Instrumentation *instrumentation.Instrumentation
}

// New creates a new OAuth server
func New(
	clientStore storage.ClientStore,
	sessionStore storage.SessionStore,
	tokenStore storage.TokenStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if sessionStore == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	srv := &Server{
		clientStore:  clientStore,
		sessionStore: sessionStore,
		tokenStore:   tokenStore,
		Config:       config,
		Logger:       logger,
	}

	if !config.DisableBootstrapClient {
		if err := srv.seedBootstrapClient(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to seed bootstrap client: %w", err)
		}
	}

	return srv, nil
}

// seedBootstrapClient registers the built-in development client. Seeding is
// idempotent: an existing record with the bootstrap ID is left untouched.
func (s *Server) seedBootstrapClient(ctx context.Context) error {
	if _, err := s.clientStore.GetClient(ctx, BootstrapClientID); err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(BootstrapClientSecret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap client secret: %w", err)
	}

	client := &storage.Client{
		ClientID:         BootstrapClientID,
		ClientSecretHash: string(hash),
		RedirectURI:      BootstrapClientRedirectURI,
		ClientName:       "MCP Development Client",
		Scopes:           bootstrapClientScopes(),
		CreatedAt:        time.Now(),
	}
	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return fmt.Errorf("failed to save bootstrap client: %w", err)
	}

	s.Logger.Info("Seeded bootstrap client",
		"client_id", BootstrapClientID,
		"redirect_uri", BootstrapClientRedirectURI)
	return nil
}

// metrics returns the metric recorder, or nil when instrumentation is not
// configured. The recorder methods tolerate a nil receiver.
func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation sets the OpenTelemetry instrumentation for the server
// and propagates it to storage backends that support it.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := s.clientStore.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
}
