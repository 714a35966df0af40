package security

import (
	"net/http/httptest"
	"testing"
)

func TestGetClientIP_DirectConnection(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"

	if got := GetClientIP(r, false, 0); got != "192.0.2.10" {
		t.Errorf("GetClientIP() = %q, want %q", got, "192.0.2.10")
	}
}

func TestGetClientIP_IgnoresHeadersWithoutTrust(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.5")
	r.Header.Set("X-Real-IP", "203.0.113.6")

	// Spoofed headers must not be honored on direct connections.
	if got := GetClientIP(r, false, 0); got != "192.0.2.10" {
		t.Errorf("GetClientIP() = %q, want %q", got, "192.0.2.10")
	}
}

func TestGetClientIP_XForwardedFor(t *testing.T) {
	tests := []struct {
		name              string
		xff               string
		trustedProxyCount int
		want              string
	}{
		{
			name:              "single proxy",
			xff:               "203.0.113.5, 198.51.100.1",
			trustedProxyCount: 1,
			want:              "203.0.113.5",
		},
		{
			name:              "two proxies",
			xff:               "203.0.113.5, 198.51.100.1, 198.51.100.2",
			trustedProxyCount: 2,
			want:              "203.0.113.5",
		},
		{
			name:              "chain shorter than proxy count falls back to leftmost",
			xff:               "203.0.113.5",
			trustedProxyCount: 3,
			want:              "203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "192.0.2.10:54321"
			r.Header.Set("X-Forwarded-For", tt.xff)

			if got := GetClientIP(r, true, tt.trustedProxyCount); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetClientIP_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	r.Header.Set("X-Real-IP", "203.0.113.7")

	if got := GetClientIP(r, true, 1); got != "203.0.113.7" {
		t.Errorf("GetClientIP() = %q, want %q", got, "203.0.113.7")
	}
}

func TestGetClientIP_InvalidForwardedValue(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	r.Header.Set("X-Forwarded-For", "not-an-ip")

	if got := GetClientIP(r, true, 1); got != "192.0.2.10" {
		t.Errorf("GetClientIP() = %q, want fallback to RemoteAddr %q", got, "192.0.2.10")
	}
}
