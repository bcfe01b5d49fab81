// Package telemetry groups Luthien's observability packages.
//
//   - logging: slog construction with redaction and request-scoped fields
//   - metrics: Prometheus collectors for requests, policies and streams
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness and readiness endpoints
package telemetry
