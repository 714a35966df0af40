package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestRegisterClient(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	redirectURIs := []string{"https://app.example.com/callback", "https://app.example.com/alt"}

	client, secret, err := srv.RegisterClient(ctx, redirectURIs, "Example App")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	if !strings.HasPrefix(client.ClientID, "client-") {
		t.Errorf("ClientID = %q, want client- prefix", client.ClientID)
	}
	if len(secret) != clientSecretLength {
		t.Errorf("secret length = %d, want %d", len(secret), clientSecretLength)
	}
	for _, r := range secret {
		if !strings.ContainsRune(clientSecretCharset, r) {
			t.Errorf("secret contains non-alphanumeric character %q", r)
		}
	}

	// Only the first redirect URI is retained.
	if client.RedirectURI != redirectURIs[0] {
		t.Errorf("RedirectURI = %q, want %q", client.RedirectURI, redirectURIs[0])
	}
	if client.ClientName != "Example App" {
		t.Errorf("ClientName = %q, want %q", client.ClientName, "Example App")
	}
	if len(client.Scopes) != 0 {
		t.Errorf("Scopes = %v, want empty", client.Scopes)
	}

	// Stored hash verifies against the returned plaintext.
	if err := bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(secret)); err != nil {
		t.Errorf("stored hash does not match returned secret: %v", err)
	}
}

func TestRegisterClient_UniqueIDs(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	a, _, err := srv.RegisterClient(ctx, []string{"https://a.example.com/cb"}, "A")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	b, _, err := srv.RegisterClient(ctx, []string{"https://b.example.com/cb"}, "B")
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	if a.ClientID == b.ClientID {
		t.Errorf("two registrations produced the same client ID %q", a.ClientID)
	}
}

func TestRegisterClient_NoRedirectURIs(t *testing.T) {
	srv := newTestServer(t)

	if _, _, err := srv.RegisterClient(context.Background(), nil, "Example App"); err == nil {
		t.Error("RegisterClient() with no redirect URIs should return error")
	}
}

func TestValidateClient(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		clientID    string
		redirectURI string
		wantErr     bool
	}{
		{
			name:        "exact match",
			clientID:    BootstrapClientID,
			redirectURI: BootstrapClientRedirectURI,
			wantErr:     false,
		},
		{
			name:        "registered URI contains presented prefix",
			clientID:    BootstrapClientID,
			redirectURI: "http://localhost:8080",
			wantErr:     false,
		},
		{
			name:        "unrelated URI",
			clientID:    BootstrapClientID,
			redirectURI: "https://evil.example.com/callback",
			wantErr:     true,
		},
		{
			name:        "unknown client",
			clientID:    "no-such-client",
			redirectURI: BootstrapClientRedirectURI,
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.ValidateClient(ctx, tt.clientID, tt.redirectURI)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidClient) {
				t.Errorf("ValidateClient() error = %v, want ErrInvalidClient", err)
			}
		})
	}
}
