package tracing

import (
	"context"
	"errors"
	"fmt"

	"mercator-hq/luthien/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentationName = "mercator-hq/luthien"

// Tracer wraps the OpenTelemetry tracer used for request and policy spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// New creates a Tracer from cfg that exports spans over OTLP gRPC. When
// tracing is disabled the tracer is a noop and no exporter is dialed.
//
// The tracer must be shut down when no longer needed:
//
//	defer tracer.Shutdown(context.Background())
func New(ctx context.Context, cfg *config.TracingConfig, version string) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing config is nil")
	}
	if !cfg.Enabled {
		return Noop(), nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("tracing endpoint is required when tracing is enabled")
	}

	sampler, err := createSampler(cfg.Sampler, cfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}
	exporter, err := otlpExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return build(ctx, cfg.ServiceName, version, sampler, exporter)
}

// NewWithExporter creates an enabled Tracer that hands spans to exporter,
// ignoring cfg's endpoint. Sampling still follows cfg.
func NewWithExporter(ctx context.Context, cfg *config.TracingConfig, version string, exporter sdktrace.SpanExporter) (*Tracer, error) {
	if cfg == nil {
		return nil, errors.New("tracing config is nil")
	}
	sampler, err := createSampler(cfg.Sampler, cfg.SampleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}
	return build(ctx, cfg.ServiceName, version, sampler, exporter)
}

// build installs a provider for exporter as the global tracer provider, with
// W3C trace context and baggage propagation.
func build(ctx context.Context, service, version string, sampler sdktrace.Sampler, exporter sdktrace.SpanExporter) (*Tracer, error) {
	if service == "" {
		service = config.DefaultTracingService
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
		resource.WithProcessRuntimeVersion(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{tracer: provider.Tracer(instrumentationName), provider: provider}, nil
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// Start creates a span linked to the parent span in ctx. A nil Tracer
// behaves like Noop.
//
//	ctx, span := tracer.Start(ctx, "policy.apply")
//	defer span.End()
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName).Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown exports pending spans and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t != nil && t.provider != nil
}

func otlpExporter(ctx context.Context, cfg *config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if cfg.OTLP.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.OTLP.Timeout))
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter for %s: %w", cfg.Endpoint, err)
	}
	return exporter, nil
}

// TraceID returns the trace ID from the context as a string.
// Returns empty string if no trace context exists.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// Attribute keys for Luthien spans.
const (
	AttrRequestID  = attribute.Key("luthien.request_id")
	AttrPolicyName = attribute.Key("luthien.policy.name")
	AttrPolicyType = attribute.Key("luthien.policy.type")
	AttrStreaming  = attribute.Key("luthien.streaming")
	AttrModel      = attribute.Key("luthien.model")
	AttrStatusCode = attribute.Key("http.response.status_code")
)

// SetStatus records err on span and sets the span status accordingly.
func SetStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
