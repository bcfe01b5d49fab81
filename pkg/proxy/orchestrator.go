package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/proxy/types"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"
	"mercator-hq/luthien/pkg/telemetry/tracing"
	"mercator-hq/luthien/pkg/transaction"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RootProvider supplies the policy applied to each request. It may return
// nil when no tree has loaded yet.
type RootProvider interface {
	Current() policy.Policy
}

// Options configures an Orchestrator. All fields are optional.
type Options struct {
	Logger       *slog.Logger
	Metrics      *metrics.Collector
	Tracer       *tracing.Tracer
	MaxBodyBytes int64
}

// Orchestrator is the chat completions handler. It builds a Transaction from
// the inbound request, applies the root policy and writes the result with
// the buffered or streaming encoder.
//
// A *policy.Error is answered directly with its status and detail; the
// encoders are not involved because the transaction may be half-built. Any
// other error, including a panic inside a policy, is logged and answered with
// the generic 500 response.
type Orchestrator struct {
	root    RootProvider
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	maxBody int64
	stream  *StreamEncoder
}

// NewOrchestrator returns an Orchestrator over root.
func NewOrchestrator(root RootProvider, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "proxy.orchestrator")
	return &Orchestrator{
		root:    root,
		logger:  logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		maxBody: opts.MaxBodyBytes,
		stream:  NewStreamEncoder(logger, opts.Metrics),
	}
}

// panicError carries a recovered panic out of a policy.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic in policy: %v", e.value)
}

func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		_ = WriteError(w, http.StatusMethodNotAllowed, types.NewErrorResponse(
			http.StatusMethodNotAllowed,
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			types.CodeMethodNotAllowed, "method",
		))
		return
	}

	ctx, span := o.tracer.Start(ctx, "proxy.chat_completion", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	req, err := ParseRequest(r, o.maxBody)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			o.logger.InfoContext(ctx, "rejected malformed request", "error", err, "param", reqErr.Param)
			_ = WriteError(w, reqErr.Status, reqErr.ToErrorResponse())
			o.finish(span, metrics.OutcomeRejected, false, start, reqErr.Status)
			return
		}
		o.unexpected(ctx, w, nil, err)
		o.finish(span, metrics.OutcomeError, false, start, http.StatusInternalServerError)
		return
	}

	root := o.root.Current()
	if root == nil {
		o.logger.ErrorContext(ctx, "no policy tree loaded")
		_ = WriteError(w, http.StatusServiceUnavailable, types.NewErrorResponse(
			http.StatusServiceUnavailable, "policy tree not loaded", types.CodePolicyNotLoaded, "",
		))
		o.finish(span, metrics.OutcomeError, false, start, http.StatusServiceUnavailable)
		return
	}

	tx := transaction.New(logging.GetRequestID(ctx), req)
	span.SetAttributes(
		tracing.AttrRequestID.String(tx.ID),
		tracing.AttrModel.String(req.Model()),
		attribute.String("luthien.policy.root", root.Name()),
	)

	out, err := o.apply(ctx, root, tx)
	if out == nil {
		out = tx
	}
	if err != nil {
		if out.IsStreaming() {
			out.Response.Stream.Close()
		}
		if perr, ok := policy.AsError(err); ok {
			o.logger.InfoContext(ctx, "request rejected by policy",
				"transaction_id", tx.ID,
				"policy", perr.Policy,
				"status", perr.StatusCode(),
				"code", perr.Code,
				"error", err,
			)
			_ = WritePolicyError(w, perr)
			tracing.SetStatus(span, err)
			o.finish(span, metrics.OutcomeRejected, false, start, perr.StatusCode())
			return
		}
		o.unexpected(ctx, w, out, err)
		tracing.SetStatus(span, err)
		o.finish(span, metrics.OutcomeError, false, start, http.StatusInternalServerError)
		return
	}

	if out.IsStreaming() {
		span.SetAttributes(tracing.AttrStreaming.Bool(true))
		res := o.stream.Encode(ctx, w, out)
		outcome := metrics.OutcomeSuccess
		if res.Err != nil && !res.Disconnected {
			outcome = metrics.OutcomeError
			tracing.SetStatus(span, res.Err)
		}
		o.logger.InfoContext(ctx, "streamed completion",
			"transaction_id", out.ID,
			"chunks", res.Chunks,
			"disconnected", res.Disconnected,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		o.finish(span, outcome, true, start, http.StatusOK)
		return
	}

	if err := WriteBuffered(w, out); err != nil {
		if errors.Is(err, ErrNoResponse) {
			o.unexpected(ctx, w, out, err)
			o.finish(span, metrics.OutcomeError, false, start, http.StatusInternalServerError)
			return
		}
		o.logger.WarnContext(ctx, "failed to write response", "transaction_id", out.ID, "error", err)
	}
	o.logger.DebugContext(ctx, "completed request",
		"transaction_id", out.ID,
		"status", out.Response.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	o.finish(span, metrics.OutcomeSuccess, false, start, out.Response.StatusCode)
}

// apply runs the root policy, turning a panic into an unexpected error.
func (o *Orchestrator) apply(ctx context.Context, root policy.Policy, tx *transaction.Transaction) (out *transaction.Transaction, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = tx, &panicError{value: v, stack: debug.Stack()}
		}
	}()
	return root.Apply(ctx, tx)
}

// unexpected logs err with full context and writes the generic 500.
func (o *Orchestrator) unexpected(ctx context.Context, w http.ResponseWriter, tx *transaction.Transaction, err error) {
	attrs := []any{"error", err}
	if tx != nil {
		attrs = append(attrs, "transaction_id", tx.ID, "model", tx.Request.Model())
		if tx.Response != nil {
			attrs = append(attrs, "backend_status", tx.Response.StatusCode)
		}
	}
	var pe *panicError
	if errors.As(err, &pe) {
		attrs = append(attrs, "stack", string(pe.stack))
	}
	o.logger.ErrorContext(ctx, "unexpected error while handling request", attrs...)
	_ = WriteInternalError(w)
}

func (o *Orchestrator) finish(span trace.Span, outcome string, streaming bool, start time.Time, status int) {
	span.SetAttributes(tracing.AttrStatusCode.Int(status))
	o.metrics.RecordRequest(outcome, streaming, time.Since(start))
}
