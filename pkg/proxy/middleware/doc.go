// Package middleware provides the HTTP middleware wrapped around the proxy
// handlers.
//
// # Middleware Chain
//
//	handler = Recovery(Logging(RequestID(CORS(handler))))
//
// Order (innermost to outermost):
//  1. CORS: Add Cross-Origin Resource Sharing headers, answer preflights
//  2. RequestID: Accept or generate X-Request-ID, store it in the context
//  3. Logging: One access log line per request
//  4. Recovery: Recover from panics outside the orchestrator
//
// No middleware buffers the response body, so streamed responses are flushed
// frame by frame. The status-capturing writer used by Logging forwards Flush
// through http.ResponseController.
//
// # Request ID
//
// The request ID becomes the transaction ID. It is added to the context with
// logging.WithRequestID, so every log line written with that context carries
// it:
//
//	X-Request-ID: 550e8400-e29b-41d4-a716-446655440000
package middleware
