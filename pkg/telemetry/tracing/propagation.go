package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Extract reads W3C trace context from inbound request headers.
//
//	ctx := tracing.Extract(r.Context(), r.Header)
//	ctx, span := tracer.Start(ctx, "chat.completions")
//
// If no trace context is found in the headers, the original context is returned.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context from ctx into outbound headers, so backend
// calls join the caller's trace.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts trace context from incoming requests and exposes
// the trace ID in the X-Trace-ID response header.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)
		if id := TraceID(ctx); id != "" {
			w.Header().Set("X-Trace-ID", id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
