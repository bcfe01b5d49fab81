// Package tracing provides OpenTelemetry tracing for Luthien.
//
// When enabled, spans are exported over OTLP gRPC. The proxy opens a span per
// chat-completion request and each policy application gets a child span, so
// a trace shows the policy tree as it ran. Incoming W3C trace context is
// honored and forwarded to the backend.
//
//	tracer, err := tracing.New(ctx, &cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "policy.apply")
//	defer span.End()
//
// Sampling strategies are "always", "never" and "ratio", each wrapped in a
// parent-based sampler.
package tracing
