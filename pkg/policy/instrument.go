package policy

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"
	"mercator-hq/luthien/pkg/telemetry/tracing"
	"mercator-hq/luthien/pkg/transaction"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation bundles the observability sinks used by Instrument. Any
// field may be nil.
type Instrumentation struct {
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
}

// Instrument decorates p with a span, metrics and a debug log line per Apply.
// Stream hooks of p are not affected: they are installed by p itself.
func Instrument(p Policy, in Instrumentation) Policy {
	if in.Logger == nil {
		in.Logger = logging.Discard()
	}
	return &instrumented{inner: p, in: in}
}

type instrumented struct {
	inner Policy
	in    Instrumentation
}

func (i *instrumented) Name() string { return i.inner.Name() }

func (i *instrumented) Type() string { return i.inner.Type() }

func (i *instrumented) Unwrap() Policy { return i.inner }

func (i *instrumented) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	name, typ := i.inner.Name(), i.inner.Type()

	ctx, span := i.in.Tracer.Start(ctx, "policy."+name, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	if span.IsRecording() {
		span.SetAttributes(
			tracing.AttrPolicyName.String(name),
			tracing.AttrPolicyType.String(typ),
			tracing.AttrRequestID.String(tx.ID),
		)
	}

	start := time.Now()
	out, err := i.inner.Apply(ctx, tx)
	elapsed := time.Since(start)

	// A composite's error was already logged by the child that raised it.
	_, composite := i.inner.(Parent)

	outcome := metrics.OutcomeSuccess
	perr, isPolicyErr := AsError(err)
	switch {
	case err == nil:
		i.in.Logger.DebugContext(ctx, "policy applied",
			"policy", name,
			"type", typ,
			"duration_ms", elapsed.Milliseconds(),
		)
	case isPolicyErr:
		outcome = metrics.OutcomeRejected
		if span.IsRecording() {
			span.SetAttributes(attribute.Int("policy.error.status", perr.StatusCode()))
		}
		if !composite || perr.Policy == name {
			i.in.Logger.InfoContext(ctx, "policy rejected transaction",
				"policy", name,
				"type", typ,
				"status", perr.StatusCode(),
				"detail", perr.Detail,
			)
		}
	default:
		outcome = metrics.OutcomeError
		if !composite {
			i.in.Logger.ErrorContext(ctx, "policy failed",
				"policy", name,
				"type", typ,
				"error", err,
			)
		}
	}

	tracing.SetStatus(span, err)
	i.in.Metrics.RecordPolicyApplication(name, typ, outcome, elapsed)
	return out, err
}
