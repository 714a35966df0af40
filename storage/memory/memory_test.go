package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mcpgate/oauth/internal/testutil"
	"github.com/mcpgate/oauth/storage"
)

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_SaveClient(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	client := testutil.GenerateTestClient()

	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	got, err := store.GetClient(ctx, client.ClientID)
	if err != nil {
		t.Fatalf("GetClient() error = %v", err)
	}
	if got.ClientID != client.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, client.ClientID)
	}
	if got.RedirectURI != client.RedirectURI {
		t.Errorf("RedirectURI = %q, want %q", got.RedirectURI, client.RedirectURI)
	}
}

func TestStore_SaveClient_Nil(t *testing.T) {
	store := New()
	defer store.Stop()

	if err := store.SaveClient(context.Background(), nil); err == nil {
		t.Error("SaveClient() with nil client should return error")
	}
}

func TestStore_SaveClient_EmptyID(t *testing.T) {
	store := New()
	defer store.Stop()

	client := testutil.GenerateTestClient()
	client.ClientID = ""

	if err := store.SaveClient(context.Background(), client); err == nil {
		t.Error("SaveClient() with empty client ID should return error")
	}
}

func TestStore_GetClient_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetClient(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient() error = %v, want ErrClientNotFound", err)
	}
}

func TestStore_ValidateClientSecret(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	if err := store.ValidateClientSecret(ctx, client.ClientID, "secret"); err != nil {
		t.Errorf("ValidateClientSecret() with correct secret error = %v", err)
	}

	err := store.ValidateClientSecret(ctx, client.ClientID, "wrong-secret")
	if !errors.Is(err, storage.ErrInvalidClientSecret) {
		t.Errorf("ValidateClientSecret() with wrong secret error = %v, want ErrInvalidClientSecret", err)
	}
}

func TestStore_ValidateClientSecret_UnknownClient(t *testing.T) {
	store := New()
	defer store.Stop()

	// Unknown clients fail with the same error as a wrong secret so the
	// two cases are indistinguishable to callers.
	err := store.ValidateClientSecret(context.Background(), "nonexistent", "secret")
	if !errors.Is(err, storage.ErrInvalidClientSecret) {
		t.Errorf("ValidateClientSecret() error = %v, want ErrInvalidClientSecret", err)
	}
}

func TestStore_ListClients(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	for _, id := range []string{"client-a", "client-b", "client-c"} {
		client := testutil.GenerateTestClient()
		client.ClientID = id
		if err := store.SaveClient(ctx, client); err != nil {
			t.Fatalf("SaveClient(%q) error = %v", id, err)
		}
	}

	clients, err := store.ListClients(ctx)
	if err != nil {
		t.Fatalf("ListClients() error = %v", err)
	}
	if len(clients) != 3 {
		t.Errorf("ListClients() returned %d clients, want 3", len(clients))
	}
}

// ============================================================
// SessionStore Tests
// ============================================================

func TestStore_SaveSession(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()

	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := store.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ClientID != session.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, session.ClientID)
	}
	if got.Scope != session.Scope {
		t.Errorf("Scope = %q, want %q", got.Scope, session.Scope)
	}
}

func TestStore_GetSession_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetSession(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_GetSession_Expired(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	session.ExpiresAt = time.Now().Add(-1 * time.Minute)

	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	_, err := store.GetSession(ctx, session.SessionID)
	if !errors.Is(err, storage.ErrSessionExpired) {
		t.Errorf("GetSession() error = %v, want ErrSessionExpired", err)
	}
}

func TestStore_AttachProviderToken(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	session.ProviderToken = nil

	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	token := testutil.GenerateTestProviderToken()
	if err := store.AttachProviderToken(ctx, session.SessionID, token); err != nil {
		t.Fatalf("AttachProviderToken() error = %v", err)
	}

	got, err := store.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ProviderToken == nil {
		t.Fatal("ProviderToken = nil, want attached token")
	}
	if got.ProviderToken.AccessToken != token.AccessToken {
		t.Errorf("ProviderToken.AccessToken = %q, want %q", got.ProviderToken.AccessToken, token.AccessToken)
	}
}

func TestStore_AttachProviderToken_SessionNotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	err := store.AttachProviderToken(context.Background(), "nonexistent", testutil.GenerateTestProviderToken())
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("AttachProviderToken() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_ConsumeSession(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := store.ConsumeSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("ConsumeSession() error = %v", err)
	}
	if !got.Consumed {
		t.Error("ConsumeSession() returned session with Consumed = false")
	}
}

func TestStore_ConsumeSession_Replay(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if _, err := store.ConsumeSession(ctx, session.SessionID); err != nil {
		t.Fatalf("first ConsumeSession() error = %v", err)
	}

	got, err := store.ConsumeSession(ctx, session.SessionID)
	if !errors.Is(err, storage.ErrSessionConsumed) {
		t.Fatalf("second ConsumeSession() error = %v, want ErrSessionConsumed", err)
	}
	// The session rides along with the error so callers can attribute
	// the replay attempt.
	if got == nil {
		t.Error("second ConsumeSession() session = nil, want the consumed session")
	}
}

func TestStore_ConsumeSession_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.ConsumeSession(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("ConsumeSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestStore_ConsumeSession_Expired(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	session.ExpiresAt = time.Now().Add(-1 * time.Minute)
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	_, err := store.ConsumeSession(ctx, session.SessionID)
	if !errors.Is(err, storage.ErrSessionExpired) {
		t.Errorf("ConsumeSession() error = %v, want ErrSessionExpired", err)
	}
}

func TestStore_ConsumeSession_Concurrent(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeSession(ctx, session.SessionID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("got %d successful consumptions, want exactly 1", successes)
	}
}

// ============================================================
// TokenStore Tests
// ============================================================

func TestStore_SaveAccessToken(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	token := testutil.GenerateTestIssuedToken()

	if err := store.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	got, err := store.GetAccessToken(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("GetAccessToken() error = %v", err)
	}
	if got.ClientID != token.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, token.ClientID)
	}
	if got.ProviderToken == nil {
		t.Error("ProviderToken = nil, want the provider token carried through")
	}
}

func TestStore_GetAccessToken_NotFound(t *testing.T) {
	store := New()
	defer store.Stop()

	_, err := store.GetAccessToken(context.Background(), "nonexistent")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken() error = %v, want ErrTokenNotFound", err)
	}
}

func TestStore_GetAccessToken_Expired(t *testing.T) {
	store := New()
	defer store.Stop()
	ctx := context.Background()

	token := testutil.GenerateTestIssuedToken()
	token.ExpiresAt = time.Now().Add(-1 * time.Minute)

	if err := store.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	_, err := store.GetAccessToken(ctx, token.AccessToken)
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("GetAccessToken() for expired token error = %v, want ErrTokenNotFound", err)
	}
}

// ============================================================
// Cleanup Tests
// ============================================================

func TestStore_Cleanup_SweepsExpired(t *testing.T) {
	store := NewWithInterval(10 * time.Millisecond)
	defer store.Stop()
	ctx := context.Background()

	session := testutil.GenerateTestSession()
	session.ExpiresAt = time.Now().Add(20 * time.Millisecond)
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	token := testutil.GenerateTestIssuedToken()
	token.ExpiresAt = time.Now().Add(20 * time.Millisecond)
	if err := store.SaveAccessToken(ctx, token); err != nil {
		t.Fatalf("SaveAccessToken() error = %v", err)
	}

	// Clients are never swept.
	client := testutil.GenerateTestClient()
	if err := store.SaveClient(ctx, client); err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.muSessions.RLock()
		sessions := len(store.sessions)
		store.muSessions.RUnlock()
		store.muTokens.RLock()
		tokens := len(store.tokens)
		store.muTokens.RUnlock()
		if sessions == 0 && tokens == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	store.muSessions.RLock()
	sessionsLeft := len(store.sessions)
	store.muSessions.RUnlock()
	if sessionsLeft != 0 {
		t.Errorf("sessions after sweep = %d, want 0", sessionsLeft)
	}
	store.muTokens.RLock()
	tokensLeft := len(store.tokens)
	store.muTokens.RUnlock()
	if tokensLeft != 0 {
		t.Errorf("tokens after sweep = %d, want 0", tokensLeft)
	}

	if _, err := store.GetClient(ctx, client.ClientID); err != nil {
		t.Errorf("GetClient() after sweep error = %v, clients must survive cleanup", err)
	}
}
