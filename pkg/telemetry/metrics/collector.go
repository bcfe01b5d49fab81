package metrics

import (
	"time"

	"mercator-hq/luthien/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by request and policy metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector owns the Prometheus registry and every Luthien metric.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding each call.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requests *RequestMetrics
	streams  *StreamMetrics
	policies *PolicyMetrics
}

// NewCollector creates a collector registered on registry. If registry is nil
// a fresh registry is created.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := *cfg
	if c.Namespace == "" {
		c.Namespace = config.DefaultMetricsNamespace
	}
	if c.Subsystem == "" {
		c.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(c.RequestDurationBuckets) == 0 {
		c.RequestDurationBuckets = config.DefaultRequestDurationBuckets()
	}

	return &Collector{
		config:   &c,
		registry: registry,
		requests: NewRequestMetrics(&c, registry),
		streams:  NewStreamMetrics(&c, registry),
		policies: NewPolicyMetrics(&c, registry),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRequest records a completed proxy request.
//
// Parameters:
//   - outcome: OutcomeSuccess, OutcomeRejected (policy error) or OutcomeError
//   - streaming: whether the client asked for a streamed response
//   - duration: time from request receipt to the last byte written
func (c *Collector) RecordRequest(outcome string, streaming bool, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requests.RecordRequest(outcome, streaming, duration)
}

// RecordPolicyApplication records one Apply call.
func (c *Collector) RecordPolicyApplication(name, policyType, outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.policies.RecordApplication(name, policyType, outcome, duration)
}

// RecordPolicyReload records a policy tree reload attempt.
//
// Parameters:
//   - trigger: what started the reload ("startup", "watch", "schedule", "manual")
//   - success: whether the new tree was installed
func (c *Collector) RecordPolicyReload(trigger string, success bool) {
	if !c.enabled() {
		return
	}
	c.policies.RecordReload(trigger, success)
}

// RecordStreamChunk counts a chunk written to a streaming client.
func (c *Collector) RecordStreamChunk() {
	if !c.enabled() {
		return
	}
	c.streams.RecordChunk()
}

// RecordStreamError counts a stream that ended with an error event.
//
// Parameters:
//   - kind: "policy" for policy errors, "internal" for anything else
func (c *Collector) RecordStreamError(kind string) {
	if !c.enabled() {
		return
	}
	c.streams.RecordError(kind)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
