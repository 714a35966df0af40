// Package oauth provides an in-memory OAuth 2.0 authorization server for
// MCP workspace servers.
//
// It implements the authorization code flow end to end: dynamic client
// registration (RFC 7591), a consent page, code issuance, token exchange,
// bearer token validation (RFC 6750), and authorization server metadata
// discovery (RFC 8414). All state lives in memory; nothing survives a
// restart.
//
// The Handler type adapts the flow logic in the server package to
// net/http. A minimal deployment wires the handlers onto a mux:
//
//	store := memory.New()
//	srv, err := server.New(store, store, store, &server.Config{
//	    Issuer: "http://localhost:8080",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	handler := oauth.NewHandler(srv, logger)
//
//	mux.HandleFunc("/oauth/authorize", handler.ServeAuthorize)
//	mux.HandleFunc("/oauth/approve", handler.ServeApprove)
//	mux.HandleFunc("/oauth/token", handler.ServeToken)
//	mux.HandleFunc("/oauth/register", handler.ServeClientRegistration)
//	mux.HandleFunc("/.well-known/oauth-authorization-server", handler.ServeAuthorizationServerMetadata)
//
// Resource endpoints are protected with the ValidateToken middleware.
package oauth
