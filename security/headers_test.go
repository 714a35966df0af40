package security

import (
	"net/http/httptest"
	"testing"
)

func TestSetSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSecurityHeaders(rec, "http://localhost:8080")

	want := map[string]string{
		"X-Frame-Options":        "DENY",
		"X-Content-Type-Options": "nosniff",
		"Referrer-Policy":        "no-referrer",
		"Pragma":                 "no-cache",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}

	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy not set")
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("Cache-Control not set")
	}

	// HTTP servers must not advertise HSTS.
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("Strict-Transport-Security set for an HTTP server URL")
	}
}

func TestSetSecurityHeaders_HSTSForHTTPS(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSecurityHeaders(rec, "https://auth.example.com")

	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("Strict-Transport-Security not set for an HTTPS server URL")
	}
}
