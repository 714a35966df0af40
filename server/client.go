package server

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcpgate/oauth/storage"
)

const clientSecretLength = 32

const clientSecretCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generateClientSecret produces a random alphanumeric secret. The plaintext
// is returned to the client exactly once at registration time; only the
// bcrypt hash is stored.
func generateClientSecret() (string, error) {
	buf := make([]byte, clientSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	for i, b := range buf {
		buf[i] = clientSecretCharset[int(b)%len(clientSecretCharset)]
	}
	return string(buf), nil
}

// RegisterClient creates a new dynamically registered client.
// Only the first redirect URI is retained; additional entries are ignored.
// The returned secret is the plaintext value and is not recoverable later.
func (s *Server) RegisterClient(ctx context.Context, redirectURIs []string, clientName string) (*storage.Client, string, error) {
	if len(redirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required")
	}

	clientID := "client-" + uuid.NewString()

	secret, err := generateClientSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	client := &storage.Client{
		ClientID:         clientID,
		ClientSecretHash: string(hash),
		RedirectURI:      redirectURIs[0],
		ClientName:       clientName,
		Scopes:           []string{},
		CreatedAt:        time.Now(),
	}

	if err := s.clientStore.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to save client: %w", err)
	}

	s.Logger.Info("Registered client",
		"client_id", clientID,
		"client_name", clientName,
		"redirect_uri", client.RedirectURI)

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(clientID, "")
	}
	s.metrics().RecordClientRegistration(ctx)

	return client, secret, nil
}

// ValidateClient looks up a client and checks the presented redirect URI
// against the registered one. The registered URI must contain the presented
// value; this mirrors the loose matching the development tooling relies on
// for localhost callbacks with varying paths.
func (s *Server) ValidateClient(ctx context.Context, clientID, redirectURI string) (*storage.Client, error) {
	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		s.Logger.Debug("Client validation failed",
			"reason", "unknown_client",
			"client_id", clientID)
		return nil, fmt.Errorf("%w: unknown client %q", ErrInvalidClient, clientID)
	}

	if !containsRedirectURI(client.RedirectURI, redirectURI) {
		s.Logger.Debug("Client validation failed",
			"reason", "redirect_uri_mismatch",
			"client_id", clientID,
			"registered_uri", client.RedirectURI,
			"presented_uri", redirectURI)
		return nil, fmt.Errorf("%w: redirect URI mismatch for client %q", ErrInvalidClient, clientID)
	}

	return client, nil
}

// containsRedirectURI reports whether the registered URI covers the
// presented one. An empty presented URI always matches.
func containsRedirectURI(registered, presented string) bool {
	return strings.Contains(registered, presented)
}
