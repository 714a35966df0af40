package instrumentation

import (
	"context"
	"errors"
	"testing"
)

// ============================================================
// Construction
// ============================================================

func TestNew_Disabled(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if inst.Metrics() == nil {
		t.Error("Metrics() = nil, want usable no-op metrics")
	}
	if inst.Meter("http") == nil {
		t.Error("Meter() = nil")
	}
	if inst.Tracer("handler") == nil {
		t.Error("Tracer() = nil")
	}
}

func TestNew_Enabled(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", ServiceVersion: "1.2.3", Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.MeterProvider() == nil || inst.TracerProvider() == nil {
		t.Error("providers not initialized")
	}
}

func TestNew_DefaultsServiceName(t *testing.T) {
	// An empty service name must not fail resource creation.
	if _, err := New(Config{}); err != nil {
		t.Fatalf("New() with empty config error = %v", err)
	}
}

func TestShouldLogClientIPs(t *testing.T) {
	inst, err := New(Config{LogClientIPs: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs() = false, want true")
	}

	inst, err = New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs() = true, want false")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

// ============================================================
// Metric recording
// ============================================================

func TestMetrics_RecordingDoesNotPanic(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	m := inst.Metrics()
	m.RecordHTTPRequest(ctx, "POST", "token", 200, 1.5)
	m.RecordAuthorizationRequested(ctx, "client-1")
	m.RecordAuthorizationDecision(ctx, "client-1", true)
	m.RecordAuthorizationDecision(ctx, "client-1", false)
	m.RecordCodeExchange(ctx, "client-1")
	m.RecordTokenIssued(ctx, "client-1")
	m.RecordClientRegistration(ctx)
	m.RecordRateLimitExceeded(ctx, "ip")
	m.RecordCodeReplayDetected(ctx)
	m.RecordBearerRejected(ctx, "invalid_token")
	m.RecordStorageOperation(ctx, "save_session", "success", 0.2)
	m.RecordAuditEvent(ctx, "token_issued")
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "metadata", 200, 0.1)
	m.RecordCodeExchange(ctx, "client-1")
	m.RecordBearerRejected(ctx, "missing_or_malformed_header")
	m.RecordRateLimitExceeded(ctx, "ip")
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	inst, err := New(Config{Enabled: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 1 },
		func() int64 { return 2 },
		func() int64 { return 3 },
	)
	if err != nil {
		t.Errorf("RegisterStorageSizeCallbacks() error = %v", err)
	}
}

// ============================================================
// Span helpers
// ============================================================

func TestSpanHelpers_TolerateNilSpan(t *testing.T) {
	RecordError(nil, errors.New("boom"))
	RecordError(nil, nil)
	SetSpanSuccess(nil)
	SetSpanError(nil, "failed")
	SetSpanAttributes(nil)
	AddOAuthFlowAttributes(nil, "client-1", "profile")
	AddStorageAttributes(nil, "save_session", "memory")
	AddHTTPAttributes(nil, "POST", "token", 200)
	AddSecurityAttributes(nil, "192.0.2.1")
}
