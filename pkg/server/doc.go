// Package server hosts the proxy's HTTP endpoints.
//
// # Routes
//
//   - POST /v1/chat/completions - chat completions, buffered or streamed
//   - GET /health - liveness probe, always 200 while the process runs
//   - GET /ready - readiness probe, 503 until a policy tree has loaded
//   - GET /metrics - Prometheus metrics, when metrics are enabled
//
// The probe and metrics paths come from the telemetry configuration.
//
// # Middleware Chain
//
// Every route passes through, from outermost to innermost:
//
//  1. Recovery: turns a panic into a generic 500
//  2. Logging: one access log line per request
//  3. RequestID: assigns or accepts X-Request-ID
//  4. CORS: cross-origin headers and preflight answers
//  5. Tracing: extracts the inbound trace context
//
// There is no per-request timeout middleware; a streamed completion may run
// for as long as the backend keeps producing chunks.
//
// # TLS
//
// When Options.TLS is set the listener is wrapped with it, so the same routes
// are served over HTTPS. Certificate rotation is handled by the caller's
// tls.Config (see package security/tls).
//
// # Graceful Shutdown
//
// Start blocks until its context is canceled, then stops accepting
// connections and waits up to the configured shutdown timeout for in-flight
// requests, including open streams, to finish.
package server
