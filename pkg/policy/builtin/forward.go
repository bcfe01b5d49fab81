package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/tracing"
	"mercator-hq/luthien/pkg/transaction"
)

// maxErrorBody bounds how much of a failed backend response is kept.
const maxErrorBody = 1 << 20

type forwardParams struct {
	// URL is the full endpoint. Default: the backend URL followed by Path.
	URL string `mapstructure:"url"`

	// Path is appended to the backend URL. Default "/chat/completions".
	Path string `mapstructure:"path"`

	// Timeout bounds the call when set, on top of the client's own timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// forward sends the request to an OpenAI-compatible backend over HTTP.
// Streaming responses are attached as an SSE iterator; everything else is
// read into the response body. Non-2xx backend responses are passed through
// unchanged.
type forward struct {
	policy.Base
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func newForward(name string, p forwardParams, deps loader.Dependencies) (policy.Policy, error) {
	url := p.URL
	if url == "" {
		if deps.Settings.BackendURL == "" {
			return nil, fmt.Errorf("no backend URL configured")
		}
		path := p.Path
		if path == "" {
			path = "/chat/completions"
		}
		url = strings.TrimRight(deps.Settings.BackendURL, "/") + path
	}

	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &forward{
		Base:    policy.NewBase(name, TypeForward),
		url:     url,
		timeout: p.Timeout,
		client:  client,
		logger:  logger,
	}, nil
}

func (f *forward) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := requireRequest(f.Name(), tx); err != nil {
		return tx, err
	}
	body, err := tx.Request.Body()
	if err != nil {
		return tx, policy.NewError(f.Name(), http.StatusBadRequest, "request body could not be encoded").WithCause(err)
	}

	// The timeout has to outlive Apply for streamed bodies, so it is
	// released by the body's Close rather than here.
	var cancel context.CancelFunc = func() {}
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return tx, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = transaction.ForwardHeader(tx.Request.Header)
	req.Header.Del("Host")
	req.Header.Del("Accept-Encoding")
	req.Header.Set("Content-Type", "application/json")
	if tx.Request.Stream() {
		req.Header.Set("Accept", "text/event-stream")
	}
	tracing.Inject(ctx, req.Header)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return tx, f.transportError(ctx, err)
	}

	f.logger.DebugContext(ctx, "backend responded",
		"policy", f.Name(),
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	out := &transaction.Response{StatusCode: resp.StatusCode, Header: resp.Header}
	if resp.StatusCode/100 == 2 && tx.Request.Stream() && isEventStream(resp.Header) {
		out.Stream = streaming.NewSSEReader(&cancelOnClose{ReadCloser: resp.Body, cancel: cancel})
		tx.Response = out
		return tx, nil
	}
	defer cancel()
	defer resp.Body.Close()

	limit := int64(-1)
	if resp.StatusCode/100 != 2 {
		limit = maxErrorBody
	}
	out.Body, err = readBody(resp.Body, limit)
	if err != nil {
		return tx, f.transportError(ctx, err)
	}
	if resp.StatusCode/100 != 2 {
		f.logger.WarnContext(ctx, "backend returned an error status",
			"policy", f.Name(),
			"status", resp.StatusCode,
		)
	}
	tx.Response = out
	return tx, nil
}

// transportError converts a failed backend exchange into a policy error:
// 504 for timeouts, 502 for anything else. A cancelled client context is
// returned unchanged.
func (f *forward) transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return policy.NewError(f.Name(), http.StatusGatewayTimeout, "backend timed out").
			WithCode("backend_timeout").WithCause(err)
	}
	return policy.NewError(f.Name(), http.StatusBadGateway, "backend unavailable").
		WithCode("backend_error").WithCause(err)
}

func readBody(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	return io.ReadAll(r)
}

func isEventStream(h http.Header) bool {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	return err == nil && mt == "text/event-stream"
}

// cancelOnClose releases a request context once the streamed body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
