package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpgate/oauth/instrumentation"
	"github.com/mcpgate/oauth/internal/util"
	"github.com/mcpgate/oauth/security"
	"github.com/mcpgate/oauth/server"
	"github.com/mcpgate/oauth/storage"
)

// Handler provides HTTP handlers for the OAuth endpoints.
// It is a thin adapter over server.Server: request parsing, response
// encoding, and header hygiene live here, flow logic lives there.
type Handler struct {
	server          *server.Server
	logger          *slog.Logger
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// NewHandler creates a new HTTP handler wrapping the given server
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		server: srv,
		logger: logger,
	}
}

// SetInstrumentation enables metrics and tracing for the handler and
// propagates the instrumentation to the server and its storage.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	h.instrumentation = inst
	if inst != nil {
		h.tracer = inst.Tracer("handler")
	}
	h.server.SetInstrumentation(inst)
}

type contextKey string

const tokenContextKey contextKey = "oauth_token"

// TokenFromContext returns the validated token record stored by the
// ValidateToken middleware.
func TokenFromContext(ctx context.Context) (*storage.IssuedToken, bool) {
	token, ok := ctx.Value(tokenContextKey).(*storage.IssuedToken)
	return token, ok
}

// consentPageCSP relaxes the default policy just enough for the consent
// page's inline styles and its form post back to the approval endpoint.
const consentPageCSP = "default-src 'none'; style-src 'unsafe-inline'; form-action 'self'; frame-ancestors 'none'"

// ServeAuthorize handles GET /oauth/authorize.
// It validates the client and renders the consent page.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.authorize")
	if span != nil {
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	if h.handleCORSPreflight(w, r) {
		return
	}

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, "authorize", r.Method, http.StatusMethodNotAllowed, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP, ok := h.checkIPRateLimit(ctx, w, r, "authorize")
	if !ok {
		return
	}

	query := r.URL.Query()
	responseType := query.Get("response_type")
	clientID := query.Get("client_id")
	redirectURI := query.Get("redirect_uri")
	scope := query.Get("scope")
	state := query.Get("state")

	if responseType == "" || clientID == "" || redirectURI == "" {
		h.recordHTTPMetrics(ctx, "authorize", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "missing required parameters")
		h.writeError(w, ErrorCodeInvalidRequest,
			"response_type, client_id and redirect_uri are required", http.StatusBadRequest)
		return
	}

	instrumentation.AddOAuthFlowAttributes(span, clientID, scope)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrResponseType, responseType))

	consent, err := h.server.Authorize(ctx, clientID, redirectURI, scope, state)
	if err != nil {
		h.logger.Info("Authorization request rejected",
			"client_id", clientID,
			"ip", clientIP,
			"error", err)
		h.recordHTTPMetrics(ctx, "authorize", r.Method, http.StatusBadRequest, startTime)
		instrumentation.RecordError(span, err)
		instrumentation.SetSpanError(span, "client validation failed")
		h.writeError(w, ErrorCodeInvalidRequest, "invalid client id or redirect uri", http.StatusBadRequest)
		return
	}

	scopeDisplay := consent.Scope
	if scopeDisplay == "" {
		scopeDisplay = "Basic scope"
	}
	data := consentPageData{
		ClientID:     consent.ClientID,
		ClientName:   consent.ClientName,
		RedirectURI:  consent.RedirectURI,
		Scope:        consent.Scope,
		State:        consent.State,
		ScopeDisplay: scopeDisplay,
	}

	w.Header().Set("Content-Security-Policy", consentPageCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := consentTemplate.Execute(w, data); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
	}

	h.recordHTTPMetrics(ctx, "authorize", r.Method, http.StatusOK, startTime)
	instrumentation.SetSpanSuccess(span)
}

// ServeApprove handles POST /oauth/approve, the consent form submission.
// It redirects the user agent back to the client with either an
// authorization code or an access_denied error.
func (h *Handler) ServeApprove(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.approve")
	if span != nil {
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	if h.handleCORSPreflight(w, r) {
		return
	}

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "approve", r.Method, http.StatusMethodNotAllowed, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := h.checkIPRateLimit(ctx, w, r, "approve"); !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "approve", r.Method, http.StatusBadRequest, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	req := server.ApprovalRequest{
		ClientID:    r.PostFormValue("client_id"),
		RedirectURI: r.PostFormValue("redirect_uri"),
		Scope:       r.PostFormValue("scope"),
		State:       r.PostFormValue("state"),
		Approved:    r.PostFormValue("approved") == "true",
	}

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, req.Scope)

	redirectURL, err := h.server.Approve(ctx, req)
	if err != nil {
		h.logger.Error("Failed to process approval", "client_id", req.ClientID, "error", err)
		h.recordHTTPMetrics(ctx, "approve", r.Method, http.StatusInternalServerError, startTime)
		instrumentation.RecordError(span, err)
		instrumentation.SetSpanError(span, "approval processing failed")
		h.writeError(w, ErrorCodeServerError, "Failed to process approval", http.StatusInternalServerError)
		return
	}

	h.recordHTTPMetrics(ctx, "approve", r.Method, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// ServeToken handles POST /oauth/token.
// Only the authorization_code grant is supported; refresh_token requests
// are recognized but rejected.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.token")
	if span != nil {
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	if h.handleCORSPreflight(w, r) {
		return
	}

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusMethodNotAllowed, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP, ok := h.checkIPRateLimit(ctx, w, r, "token")
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusUnprocessableEntity, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request body", http.StatusUnprocessableEntity)
		return
	}

	grantType := r.PostFormValue("grant_type")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, grantType))

	switch grantType {
	case "authorization_code":
		h.handleAuthorizationCodeGrant(ctx, w, r, span, clientIP, startTime)
	case "refresh_token":
		// Recognized but deliberately unsupported: issued refresh tokens
		// are decorative until a refresh grant ships.
		h.logger.Info("Refresh token grant requested but not supported", "ip", clientIP)
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "refresh_token grant not supported")
		h.writeError(w, ErrorCodeUnsupportedGrantType,
			"Grant type refresh_token is not supported", http.StatusBadRequest)
	default:
		h.logger.Info("Unsupported grant type requested", "grant_type", grantType, "ip", clientIP)
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "unsupported grant type")
		h.writeError(w, ErrorCodeUnsupportedGrantType,
			"Grant type "+grantType+" is not supported", http.StatusBadRequest)
	}
}

func (h *Handler) handleAuthorizationCodeGrant(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span, clientIP string, startTime time.Time) {
	code := r.PostFormValue("code")
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	redirectURI := r.PostFormValue("redirect_uri")

	if code == "" {
		h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "code missing")
		h.writeError(w, ErrorCodeInvalidRequest, "Required parameter 'code' missing", http.StatusBadRequest)
		return
	}

	token, err := h.server.ExchangeAuthorizationCode(ctx, code, clientID, clientSecret, redirectURI)
	if err != nil {
		instrumentation.RecordError(span, err)
		instrumentation.SetSpanError(span, "code exchange failed")
		switch {
		case errors.Is(err, server.ErrInvalidClient):
			h.logger.Info("Token exchange rejected",
				"reason", "invalid_client",
				"client_id", clientID,
				"ip", clientIP)
			h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
			h.writeError(w, ErrorCodeInvalidClient, "invalid client id or redirect uri", http.StatusBadRequest)
		case errors.Is(err, server.ErrInvalidGrant):
			h.logger.Info("Token exchange rejected",
				"reason", "invalid_grant",
				"code_prefix", util.SafeTruncate(code, 16),
				"ip", clientIP)
			h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusBadRequest, startTime)
			h.writeError(w, ErrorCodeInvalidGrant, "invalid authorization code", http.StatusBadRequest)
		default:
			h.logger.Error("Token exchange failed", "client_id", clientID, "ip", clientIP, "error", err)
			h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusInternalServerError, startTime)
			h.writeError(w, ErrorCodeServerError, "failed to create access token", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("Token exchange successful", "client_id", token.ClientID, "ip", clientIP)
	h.recordHTTPMetrics(ctx, "token", r.Method, http.StatusOK, startTime)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrTokenType, token.TokenType),
		attribute.Int64(instrumentation.AttrExpiresIn, token.ExpiresIn))
	instrumentation.SetSpanSuccess(span)

	h.writeTokenResponse(w, token)
}

// ServeClientRegistration handles POST /oauth/register (RFC 7591).
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.startSpan(r.Context(), "oauth.register")
	if span != nil {
		defer span.End()
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	if h.handleCORSPreflight(w, r) {
		return
	}

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusMethodNotAllowed, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP, ok := h.checkIPRateLimit(ctx, w, r, "register")
	if !ok {
		return
	}

	var req ClientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusBadRequest, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrorCodeInvalidRequest, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if len(req.RedirectURIs) == 0 {
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "no redirect URIs")
		h.writeError(w, ErrorCodeInvalidRequest, "at least one redirect uri is required", http.StatusBadRequest)
		return
	}

	client, secret, err := h.server.RegisterClient(ctx, req.RedirectURIs, req.ClientName)
	if err != nil {
		h.logger.Error("Client registration failed", "ip", clientIP, "error", err)
		h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusInternalServerError, startTime)
		instrumentation.RecordError(span, err)
		h.writeError(w, ErrorCodeServerError, "Failed to register client", http.StatusInternalServerError)
		return
	}

	h.recordHTTPMetrics(ctx, "register", r.Method, http.StatusCreated, startTime)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID))
	instrumentation.SetSpanSuccess(span)

	response := ClientRegistrationResponse{
		ClientID:         client.ClientID,
		ClientSecret:     secret,
		ClientIDIssuedAt: client.CreatedAt.Unix(),
		RedirectURIs:     req.RedirectURIs,
		ClientName:       req.ClientName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode registration response", "error", err)
	}
}

// ServeAuthorizationServerMetadata handles GET
// /.well-known/oauth-authorization-server (RFC 8414). All endpoint URLs are
// derived from the configured issuer.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	if h.handleCORSPreflight(w, r) {
		return
	}

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics(ctx, "metadata", r.Method, http.StatusMethodNotAllowed, startTime)
		h.writeError(w, ErrorCodeInvalidRequest, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	base := util.NormalizeURL(h.server.Config.Issuer)
	metadata := AuthorizationServerMetadata{
		Issuer:                        base,
		AuthorizationEndpoint:         base + "/oauth/authorize",
		TokenEndpoint:                 base + "/oauth/token",
		RegistrationEndpoint:          base + "/oauth/register",
		JWKSURI:                       base + "/oauth/jwks",
		ScopesSupported:               h.server.Config.SupportedScopes,
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}

	h.recordHTTPMetrics(ctx, "metadata", r.Method, http.StatusOK, startTime)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		h.logger.Error("Failed to encode metadata response", "error", err)
	}
}

// ValidateToken wraps a handler with bearer token validation (RFC 6750).
// The resolved token record is placed on the request context and can be
// retrieved with TokenFromContext.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tokenString, ok := extractBearerToken(r)
		if !ok {
			h.metrics().RecordBearerRejected(ctx, "missing_or_malformed_header")
			h.writeUnauthorizedError(w, "Missing or malformed Authorization header")
			return
		}

		token, err := h.server.ValidateAccessToken(ctx, tokenString)
		if err != nil {
			h.logger.Info("Bearer token rejected",
				"token_prefix", util.SafeTruncate(tokenString, 12),
				"error", err)
			h.metrics().RecordBearerRejected(ctx, "invalid_token")
			h.writeUnauthorizedError(w, "Token validation failed")
			return
		}

		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken pulls the bearer token out of the Authorization
// header. The scheme comparison is case-insensitive per RFC 6750.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// checkIPRateLimit enforces the IP rate limiter when one is configured.
// Returns the client IP and whether the request may proceed.
func (h *Handler) checkIPRateLimit(ctx context.Context, w http.ResponseWriter, r *http.Request, endpoint string) (string, bool) {
	clientIP := security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)

	if h.server.RateLimiter != nil && !h.server.RateLimiter.Allow(clientIP) {
		h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", endpoint)
		if h.server.Auditor != nil {
			h.server.Auditor.LogRateLimitExceeded(clientIP)
		}
		h.metrics().RecordRateLimitExceeded(ctx, "ip")
		w.Header().Set("Retry-After", "60")
		h.writeError(w, ErrorCodeRateLimitExceeded,
			"Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		return clientIP, false
	}

	return clientIP, true
}

// handleCORSPreflight sets permissive CORS headers and answers OPTIONS
// preflight requests. Returns true when the request was a preflight and
// has been fully handled.
func (h *Handler) handleCORSPreflight(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *storage.IssuedToken) {
	response := TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    token.ExpiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode token response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

// writeUnauthorizedError writes a 401 with the WWW-Authenticate challenge
// required by RFC 6750.
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate",
		`Bearer error="`+ErrorCodeInvalidToken+`", error_description="`+description+`"`)
	h.writeError(w, ErrorCodeInvalidToken, description, http.StatusUnauthorized)
}

// startSpan opens a handler span when tracing is configured. The returned
// span may be nil; the instrumentation helpers tolerate that.
func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if h.tracer == nil {
		return ctx, nil
	}
	return h.tracer.Start(ctx, name)
}

func (h *Handler) metrics() *instrumentation.Metrics {
	if h.instrumentation == nil {
		return nil
	}
	return h.instrumentation.Metrics()
}

func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	h.metrics().RecordHTTPRequest(ctx, method, endpoint, status, float64(time.Since(startTime).Milliseconds()))
}
