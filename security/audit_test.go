package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCaptureAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return NewAuditor(logger, enabled), buf
}

func TestAuditor_LogEvent_HashesSessionID(t *testing.T) {
	auditor, buf := newCaptureAuditor(true)

	auditor.LogEvent(Event{
		Type:      EventCodeExchanged,
		SessionID: "super-secret-session-id",
		ClientID:  "mcp-client",
	})

	out := buf.String()
	if !strings.Contains(out, EventCodeExchanged) {
		t.Errorf("audit log missing event type, got: %s", out)
	}
	if strings.Contains(out, "super-secret-session-id") {
		t.Error("audit log contains the raw session ID")
	}
	if !strings.Contains(out, "session_id_hash") {
		t.Error("audit log missing hashed session ID")
	}
}

func TestAuditor_Disabled(t *testing.T) {
	auditor, buf := newCaptureAuditor(false)

	auditor.LogTokenIssued("session-1", "mcp-client", "1.2.3.4", "profile")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditor_EventHelpers(t *testing.T) {
	auditor, buf := newCaptureAuditor(true)

	auditor.LogAuthorizationRequested("mcp-client", "1.2.3.4", "profile email")
	auditor.LogAuthorizationApproved("session-1", "mcp-client", "1.2.3.4")
	auditor.LogAuthorizationDenied("mcp-client", "1.2.3.4")
	auditor.LogCodeExchanged("session-1", "mcp-client", "1.2.3.4")
	auditor.LogCodeReplayDetected("session-1", "mcp-client", "1.2.3.4")
	auditor.LogTokenIssued("session-1", "mcp-client", "1.2.3.4", "profile email")
	auditor.LogClientRegistered("client-abc", "1.2.3.4")
	auditor.LogAuthFailure("mcp-client", "1.2.3.4", "invalid_client_secret")
	auditor.LogRateLimitExceeded("1.2.3.4")

	out := buf.String()
	for _, eventType := range []string{
		EventAuthorizationRequested,
		EventAuthorizationApproved,
		EventAuthorizationDenied,
		EventCodeExchanged,
		EventCodeReplayDetected,
		EventTokenIssued,
		EventClientRegistered,
		EventAuthFailure,
		EventRateLimitExceeded,
	} {
		if !strings.Contains(out, eventType) {
			t.Errorf("audit log missing event type %q", eventType)
		}
	}
}

func TestHashForLogging(t *testing.T) {
	first := hashForLogging("value")
	second := hashForLogging("value")
	if first != second {
		t.Error("hashForLogging() is not deterministic")
	}
	if first == hashForLogging("other") {
		t.Error("hashForLogging() collides for different inputs")
	}
	if hashForLogging("") != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want %q", hashForLogging(""), "<empty>")
	}
}
