package metrics

import (
	"strconv"
	"time"

	"mercator-hq/luthien/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks proxied chat-completion requests.
//
// Metrics:
//   - luthien_proxy_requests_total: requests by outcome and streaming mode
//   - luthien_proxy_request_duration_seconds: end-to-end request duration
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of chat completion requests handled",
			},
			[]string{"outcome", "streaming"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of chat completion requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"streaming"},
		),
	}

	registry.MustRegister(rm.requestsTotal, rm.requestDuration)
	return rm
}

// RecordRequest records one completed request.
func (rm *RequestMetrics) RecordRequest(outcome string, streaming bool, duration time.Duration) {
	mode := strconv.FormatBool(streaming)
	rm.requestsTotal.WithLabelValues(outcome, mode).Inc()
	rm.requestDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// StreamMetrics tracks server-sent event streams written to clients.
//
// Metrics:
//   - luthien_proxy_stream_chunks_total: chunks written across all streams
//   - luthien_proxy_stream_errors_total: streams terminated by an error event
type StreamMetrics struct {
	chunksTotal prometheus.Counter
	errorsTotal *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream metrics with the provided registry.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		chunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_chunks_total",
				Help:      "Total number of streamed chunks written to clients",
			},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_errors_total",
				Help:      "Total number of streams terminated by an error event",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(sm.chunksTotal, sm.errorsTotal)
	return sm
}

// RecordChunk counts one chunk.
func (sm *StreamMetrics) RecordChunk() {
	sm.chunksTotal.Inc()
}

// RecordError counts one failed stream.
func (sm *StreamMetrics) RecordError(kind string) {
	sm.errorsTotal.WithLabelValues(kind).Inc()
}
