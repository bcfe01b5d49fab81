package metrics

import (
	"strconv"
	"time"

	"mercator-hq/luthien/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PolicyMetrics tracks policy application and policy tree reloads.
//
// Metrics:
//   - luthien_proxy_policy_applications_total: Apply calls by policy, type and outcome
//   - luthien_proxy_policy_apply_duration_seconds: Apply duration by policy
//   - luthien_proxy_policy_reloads_total: tree reloads by trigger and result
type PolicyMetrics struct {
	applicationsTotal *prometheus.CounterVec
	applyDuration     *prometheus.HistogramVec
	reloadsTotal      *prometheus.CounterVec
}

// NewPolicyMetrics creates and registers policy metrics with the provided registry.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		applicationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_applications_total",
				Help:      "Total number of policy applications",
			},
			[]string{"policy", "type", "outcome"},
		),

		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_apply_duration_seconds",
				Help:      "Duration of policy application in seconds",
				// Forwarding policies include the backend round trip.
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
			},
			[]string{"policy"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "policy_reloads_total",
				Help:      "Total number of policy tree reload attempts",
			},
			[]string{"trigger", "success"},
		),
	}

	registry.MustRegister(pm.applicationsTotal, pm.applyDuration, pm.reloadsTotal)
	return pm
}

// RecordApplication records one Apply call.
func (pm *PolicyMetrics) RecordApplication(name, policyType, outcome string, duration time.Duration) {
	pm.applicationsTotal.WithLabelValues(name, policyType, outcome).Inc()
	pm.applyDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordReload records one reload attempt.
func (pm *PolicyMetrics) RecordReload(trigger string, success bool) {
	pm.reloadsTotal.WithLabelValues(trigger, strconv.FormatBool(success)).Inc()
}
