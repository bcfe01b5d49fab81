package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the authenticated caller.
	PrincipalKey contextKey = "principal"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithPrincipal records the authenticated caller in the context.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetPrincipal retrieves the authenticated caller from the context.
func GetPrincipal(ctx context.Context) string {
	if principal, ok := ctx.Value(PrincipalKey).(string); ok {
		return principal
	}
	return ""
}

// contextAttrs extracts the request-scoped fields present in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if requestID := GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if principal := GetPrincipal(ctx); principal != "" {
		attrs = append(attrs, slog.String("principal", principal))
	}
	return attrs
}
