// Package testutil provides shared test fixtures and helpers.
package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/mcpgate/oauth/storage"
)

// TestClientSecretHash is the bcrypt hash of "secret", reused by fixtures so
// tests don't pay the bcrypt cost of hashing on every run.
const TestClientSecretHash = "$2a$10$zndzAzGeAZc/1CwIjJZ20OPJ9JscfJnOuz/MuhIhVPkWVKoRy.iWW"

// GenerateTestProviderToken creates a synthetic upstream token
func GenerateTestProviderToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "tp-token-" + GenerateRandomString(16),
		TokenType:    "Bearer",
		RefreshToken: "tp-refresh-" + GenerateRandomString(16),
		ExpiresIn:    3600,
		Expiry:       time.Now().Add(1 * time.Hour),
	}
}

// GenerateTestClient creates a test OAuth client descriptor
func GenerateTestClient() *storage.Client {
	return &storage.Client{
		ClientID:         "test-client-id",
		ClientSecretHash: TestClientSecretHash,
		RedirectURI:      "https://example.com/callback",
		ClientName:       "Test Client",
		Scopes:           []string{"profile", "email"},
		CreatedAt:        time.Now(),
	}
}

// GenerateTestSession creates an approved test session with a provider token attached
func GenerateTestSession() *storage.Session {
	return &storage.Session{
		SessionID:     GenerateRandomString(32),
		ClientID:      "test-client-id",
		Scope:         "profile email",
		State:         GenerateRandomString(16),
		ProviderToken: GenerateTestProviderToken(),
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(10 * time.Minute),
	}
}

// GenerateTestIssuedToken creates a test issued access token
func GenerateTestIssuedToken() *storage.IssuedToken {
	return &storage.IssuedToken{
		AccessToken:   "mcp-token-" + GenerateRandomString(16),
		TokenType:     "Bearer",
		ExpiresIn:     3600,
		RefreshToken:  "mcp-refresh-" + GenerateRandomString(16),
		Scope:         "profile email",
		ClientID:      "test-client-id",
		ProviderToken: GenerateTestProviderToken(),
		CreatedAt:     time.Now(),
		ExpiresAt:     time.Now().Add(1 * time.Hour),
	}
}

// GenerateRandomString generates a random base64-encoded string
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}
