// Package instrumentation provides OpenTelemetry metrics and tracing for the
// OAuth server.
//
// When disabled, no-op meter and tracer providers are installed so the
// library adds zero observability overhead. When enabled, the package exposes
// counters for the authorization flow (requests, approvals, denials, code
// exchanges, token issuance, client registration), security counters (rate
// limit violations, code replay, bearer rejections), histograms for HTTP and
// storage operation durations, and observable gauges for store sizes.
//
// Usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//	    ServiceName:    "mcpgate-oauth",
//	    ServiceVersion: "1.0.0",
//	    Enabled:        true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer inst.Shutdown(ctx)
//
// Storage implementations register size callbacks via
// RegisterStorageSizeCallbacks; the callbacks must be lock-free (typically
// backed by atomic counters) since they run during metric collection.
package instrumentation
