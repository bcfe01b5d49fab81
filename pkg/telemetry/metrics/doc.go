// Package metrics provides Prometheus metrics for the Luthien proxy.
//
// # Metrics
//
//   - requests_total{outcome,streaming} and request_duration_seconds{streaming}
//   - policy_applications_total{policy,type,outcome} and
//     policy_apply_duration_seconds{policy}
//   - policy_reloads_total{trigger,success}
//   - stream_chunks_total and stream_errors_total{kind}
//
// All names carry the configured namespace and subsystem, luthien_proxy_ by
// default.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordPolicyApplication("auth", "authenticate", metrics.OutcomeSuccess, d)
//	mux.Handle("/metrics", collector.Handler())
//
// A nil *Collector ignores every Record call.
package metrics
