package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/luthien/pkg/audit"
	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/transaction"
)

type auditParams struct{}

// auditPolicy records a summary of the transaction. For streams it counts
// chunks as they pass and records once the stream ends.
type auditPolicy struct {
	policy.Base
	sink   audit.Sink
	logger *slog.Logger
}

func newAudit(name string, _ auditParams, deps loader.Dependencies) (policy.Policy, error) {
	if deps.Audit == nil {
		return nil, fmt.Errorf("no audit sink configured")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &auditPolicy{Base: policy.NewBase(name, TypeAudit), sink: deps.Audit, logger: logger}, nil
}

func (a *auditPolicy) chunkKey() string {
	return "audit." + a.Name() + ".chunks"
}

func (a *auditPolicy) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if policy.WrapStream(tx, a) {
		tx.Data.Set(a.chunkKey(), 0)
		return tx, nil
	}
	a.record(ctx, tx, 0, nil)
	return tx, nil
}

// ProcessChunk counts c.
func (a *auditPolicy) ProcessChunk(_ context.Context, c streaming.Chunk, tx *transaction.Transaction) (streaming.Chunk, error) {
	n, _ := tx.Data[a.chunkKey()].(int)
	tx.Data.Set(a.chunkKey(), n+1)
	return c, nil
}

// FinishStream records the streamed transaction.
func (a *auditPolicy) FinishStream(ctx context.Context, tx *transaction.Transaction, err error) {
	n, _ := tx.Data[a.chunkKey()].(int)
	a.record(ctx, tx, n, err)
}

func (a *auditPolicy) record(ctx context.Context, tx *transaction.Transaction, chunks int, streamErr error) {
	e := audit.Entry{
		TransactionID: tx.ID,
		Model:         tx.Request.Model(),
		Streaming:     tx.IsStreaming(),
		Chunks:        chunks,
		Outcome:       audit.OutcomeSuccess,
		Duration:      time.Since(tx.CreatedAt),
	}
	e.Principal, _ = tx.Data.GetString(transaction.KeyPrincipalID)
	if tx.Response != nil {
		e.Status = tx.Response.StatusCode
		if e.Status/100 > 3 {
			e.Outcome = audit.OutcomeError
		}
	}
	switch {
	case errors.Is(streamErr, streaming.ErrClosed):
		e.Outcome = audit.OutcomeAborted
	case streamErr != nil:
		e.Outcome = audit.OutcomeError
		e.Error = streamErr.Error()
	}

	// The stream may end because the client left; the entry is still written.
	if err := a.sink.Record(context.WithoutCancel(ctx), e); err != nil {
		a.logger.ErrorContext(ctx, "failed to record audit entry",
			"policy", a.Name(),
			"transaction_id", tx.ID,
			"error", err,
		)
	}
}
