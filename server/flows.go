package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/mcpgate/oauth/internal/util"
	"github.com/mcpgate/oauth/storage"
)

// AuthorizationCodePrefix is prepended to the session ID to form the
// authorization code handed back on approval. The token endpoint strips it
// to recover the session.
const AuthorizationCodePrefix = "mcp-code-"

// Token prefixes. The tp- pair belongs to the synthesized upstream token
// attached to the session at approval time.
const (
	accessTokenPrefix          = "mcp-token-"
	refreshTokenPrefix         = "mcp-refresh-"
	providerAccessTokenPrefix  = "tp-token-"
	providerRefreshTokenPrefix = "tp-refresh-"
)

const denialDescription = "user rejected the authorization request"

// ConsentData carries everything the consent page needs to render and to
// round-trip through the approval form.
type ConsentData struct {
	ClientID    string
	ClientName  string
	RedirectURI string
	Scope       string
	State       string
}

// ApprovalRequest is the decoded consent form submission.
type ApprovalRequest struct {
	ClientID    string
	RedirectURI string
	Scope       string
	State       string
	Approved    bool
}

// Authorize validates the client_id / redirect_uri pair for an incoming
// authorization request and returns the data the consent page renders.
func (s *Server) Authorize(ctx context.Context, clientID, redirectURI, scope, state string) (*ConsentData, error) {
	client, err := s.ValidateClient(ctx, clientID, redirectURI)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, "", "invalid_client_or_redirect_uri")
		}
		return nil, err
	}

	s.Logger.Info("Authorization requested",
		"client_id", clientID,
		"scope", scope)

	if s.Auditor != nil {
		s.Auditor.LogAuthorizationRequested(clientID, "", scope)
	}
	s.metrics().RecordAuthorizationRequested(ctx, clientID)

	return &ConsentData{
		ClientID:    client.ClientID,
		ClientName:  client.ClientName,
		RedirectURI: redirectURI,
		Scope:       scope,
		State:       state,
	}, nil
}

// Approve processes the consent decision and returns the redirect URL the
// user agent should be sent to. On approval a session is created, an
// upstream token is synthesized and attached, and the authorization code is
// placed in the redirect. On denial the redirect carries access_denied.
func (s *Server) Approve(ctx context.Context, req ApprovalRequest) (string, error) {
	if !req.Approved {
		s.Logger.Info("Authorization denied", "client_id", req.ClientID)
		if s.Auditor != nil {
			s.Auditor.LogAuthorizationDenied(req.ClientID, "")
		}
		s.metrics().RecordAuthorizationDecision(ctx, req.ClientID, false)
		return denialRedirectURL(req.RedirectURI, req.State), nil
	}

	sessionID := uuid.NewString()
	now := time.Now()

	session := &storage.Session{
		SessionID: sessionID,
		ClientID:  req.ClientID,
		Scope:     req.Scope,
		State:     req.State,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.Config.SessionTTL) * time.Second),
	}
	if err := s.sessionStore.SaveSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	// Stand-in for a real upstream identity provider exchange. The token is
	// minted locally and carried through to the issued token unchanged.
	providerToken := s.synthesizeProviderToken()
	if err := s.sessionStore.AttachProviderToken(ctx, sessionID, providerToken); err != nil {
		return "", fmt.Errorf("failed to attach provider token: %w", err)
	}

	s.Logger.Info("Authorization approved",
		"client_id", req.ClientID,
		"session_id", sessionID)

	if s.Auditor != nil {
		s.Auditor.LogAuthorizationApproved(sessionID, req.ClientID, "")
	}
	s.metrics().RecordAuthorizationDecision(ctx, req.ClientID, true)

	return approvalRedirectURL(req.RedirectURI, AuthorizationCodePrefix+sessionID, req.State), nil
}

// synthesizeProviderToken mints the upstream token attached to an approved
// session.
func (s *Server) synthesizeProviderToken() *oauth2.Token {
	now := time.Now()
	return &oauth2.Token{
		AccessToken:  providerAccessTokenPrefix + uuid.NewString(),
		TokenType:    "Bearer",
		RefreshToken: providerRefreshTokenPrefix + uuid.NewString(),
		Expiry:       now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
		ExpiresIn:    s.Config.AccessTokenTTL,
	}
}

// ExchangeAuthorizationCode redeems an authorization code for an access
// token. Codes are single use; a second redemption attempt fails with
// ErrInvalidGrant and is reported as a replay.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, code, clientID, clientSecret, redirectURI string) (*storage.IssuedToken, error) {
	if !strings.HasPrefix(code, AuthorizationCodePrefix) {
		s.Logger.Info("Invalid authorization code",
			"code_prefix", util.SafeTruncate(code, 8),
			"client_id", clientID)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, "", "malformed_authorization_code")
		}
		return nil, fmt.Errorf("%w: malformed authorization code", ErrInvalidGrant)
	}

	// Clients that omit client_id fall back to the bootstrap client.
	if clientID == "" {
		clientID = BootstrapClientID
	}

	client, err := s.ValidateClient(ctx, clientID, redirectURI)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, "", "invalid_client_or_redirect_uri")
		}
		return nil, err
	}

	// Secret verification is opportunistic: the token endpoint accepts
	// public-style requests without a secret, but a presented secret must
	// match the stored hash.
	if clientSecret != "" {
		if err := s.clientStore.ValidateClientSecret(ctx, client.ClientID, clientSecret); err != nil {
			s.Logger.Info("Client secret verification failed", "client_id", client.ClientID)
			if s.Auditor != nil {
				s.Auditor.LogAuthFailure(client.ClientID, "", "invalid_client_secret")
			}
			return nil, fmt.Errorf("%w: client secret verification failed", ErrInvalidClient)
		}
	}

	sessionID := strings.TrimPrefix(code, AuthorizationCodePrefix)

	session, err := s.sessionStore.ConsumeSession(ctx, sessionID)
	switch {
	case errors.Is(err, storage.ErrSessionConsumed):
		// Replay. The session is returned alongside the error so the
		// attempt can be attributed.
		s.Logger.Error("Authorization code replay detected",
			"session_id", sessionID,
			"client_id", clientID)
		if s.Auditor != nil {
			s.Auditor.LogCodeReplayDetected(sessionID, clientID, "")
		}
		s.metrics().RecordCodeReplayDetected(ctx)
		return nil, fmt.Errorf("%w: authorization code already redeemed", ErrInvalidGrant)
	case errors.Is(err, storage.ErrSessionExpired):
		s.Logger.Info("Authorization code expired",
			"session_id", sessionID,
			"client_id", clientID)
		if s.Auditor != nil {
			s.Auditor.LogAuthFailure(clientID, "", "expired_authorization_code")
		}
		return nil, fmt.Errorf("%w: authorization code expired", ErrInvalidGrant)
	case err != nil:
		// A structurally valid code pointing at no session means state was
		// lost on our side, not a client mistake.
		s.Logger.Error("Session lookup failed for authorization code",
			"session_id", sessionID,
			"client_id", clientID,
			"error", err)
		return nil, fmt.Errorf("failed to load session for code: %w", err)
	}

	if session.ProviderToken == nil {
		s.Logger.Error("Session has no provider token",
			"session_id", sessionID,
			"client_id", clientID)
		return nil, fmt.Errorf("session %s has no provider token", sessionID)
	}

	token := s.mintAccessToken(client.ClientID, session)
	if err := s.tokenStore.SaveAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	s.Logger.Info("Token exchange successful",
		"client_id", client.ClientID,
		"session_id", sessionID,
		"scope", token.Scope)

	if s.Auditor != nil {
		s.Auditor.LogCodeExchanged(sessionID, client.ClientID, "")
		s.Auditor.LogTokenIssued(sessionID, client.ClientID, "", token.Scope)
	}
	s.metrics().RecordCodeExchange(ctx, client.ClientID)
	s.metrics().RecordTokenIssued(ctx, client.ClientID)

	return token, nil
}

// mintAccessToken builds the issued token for a redeemed session. The
// provider token rides along so resource handlers can act upstream on the
// user's behalf.
func (s *Server) mintAccessToken(clientID string, session *storage.Session) *storage.IssuedToken {
	now := time.Now()
	return &storage.IssuedToken{
		AccessToken:   accessTokenPrefix + uuid.NewString(),
		TokenType:     "Bearer",
		ExpiresIn:     s.Config.AccessTokenTTL,
		RefreshToken:  refreshTokenPrefix + uuid.NewString(),
		Scope:         session.Scope,
		ClientID:      clientID,
		ProviderToken: session.ProviderToken,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(s.Config.AccessTokenTTL) * time.Second),
	}
}

// ValidateAccessToken resolves a bearer token to its issued record.
// Unknown and expired tokens both come back as storage.ErrTokenNotFound.
func (s *Server) ValidateAccessToken(ctx context.Context, accessToken string) (*storage.IssuedToken, error) {
	token, err := s.tokenStore.GetAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// approvalRedirectURL appends the authorization code (and state, when the
// client sent one) to the client's redirect URI.
func approvalRedirectURL(redirectURI, code, state string) string {
	params := url.Values{}
	params.Set("code", code)
	if state != "" {
		params.Set("state", state)
	}
	return appendQuery(redirectURI, params)
}

// denialRedirectURL builds the access_denied redirect for a rejected
// consent prompt.
func denialRedirectURL(redirectURI, state string) string {
	params := url.Values{}
	params.Set("error", "access_denied")
	params.Set("error_description", denialDescription)
	if state != "" {
		params.Set("state", state)
	}
	return appendQuery(redirectURI, params)
}

// appendQuery joins params onto a URI, respecting an existing query string.
func appendQuery(uri string, params url.Values) string {
	separator := "?"
	if strings.Contains(uri, "?") {
		separator = "&"
	}
	return uri + separator + params.Encode()
}
