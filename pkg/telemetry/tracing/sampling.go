package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampler strategies accepted in telemetry.tracing.sampler.
const (
	SamplerAlways = "always"
	SamplerNever  = "never"
	SamplerRatio  = "ratio"
)

// createSampler maps a strategy name to a parent-based sampler, so a sampled
// caller keeps the proxy and policy spans in its trace.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	root := map[string]func() sdktrace.Sampler{
		SamplerAlways: sdktrace.AlwaysSample,
		SamplerNever:  sdktrace.NeverSample,
		SamplerRatio:  func() sdktrace.Sampler { return sdktrace.TraceIDRatioBased(ratio) },
	}[strategy]
	if root == nil {
		return nil, fmt.Errorf("unknown sampler %q (want %s, %s or %s)", strategy, SamplerAlways, SamplerNever, SamplerRatio)
	}
	if strategy == SamplerRatio && (ratio < 0 || ratio > 1) {
		return nil, fmt.Errorf("sample ratio %g outside [0, 1]", ratio)
	}
	return sdktrace.ParentBased(root()), nil
}
