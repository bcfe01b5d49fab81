package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/proxy/types"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"
	"mercator-hq/luthien/pkg/transaction"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const chatBody = `{"model":"gpt-4","messages":[{"role":"user","content":"hello"}]}`

// funcPolicy adapts a function to policy.Policy.
type funcPolicy struct {
	policy.Base
	fn func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error)
}

func (p *funcPolicy) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	return p.fn(ctx, tx)
}

func newFuncPolicy(fn func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error)) *funcPolicy {
	return &funcPolicy{Base: policy.NewBase("root", "test"), fn: fn}
}

// staticRoot always serves the same tree.
type staticRoot struct {
	p policy.Policy
}

func (s staticRoot) Current() policy.Policy { return s.p }

// trackingIterator records Close and can run a hook after each chunk.
type trackingIterator struct {
	chunks  []streaming.Chunk
	failAt  int
	failErr error
	afterN  func(n int)
	pos     int
	closed  bool
}

func (it *trackingIterator) Next(ctx context.Context) (streaming.Chunk, error) {
	if it.failErr != nil && it.pos == it.failAt {
		return streaming.Chunk{}, it.failErr
	}
	if it.pos >= len(it.chunks) {
		return streaming.Chunk{}, io.EOF
	}
	c := it.chunks[it.pos]
	it.pos++
	if it.afterN != nil {
		it.afterN(it.pos)
	}
	return c, nil
}

func (it *trackingIterator) Close() error {
	it.closed = true
	return nil
}

func textChunks(words ...string) []streaming.Chunk {
	out := make([]streaming.Chunk, len(words))
	for i, w := range words {
		out[i] = streaming.TextChunk("chatcmpl-1", "gpt-4", w)
	}
	return out
}

func serve(t *testing.T, o *Orchestrator, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	o.ServeHTTP(w, req)
	return w
}

func postChat(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorDetail {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body %q is not an error envelope: %v", w.Body.String(), err)
	}
	return resp.Error
}

// sseFrames splits an event-stream body into its data payloads.
func sseFrames(body string) []string {
	var out []string
	for _, frame := range strings.Split(body, "\n\n") {
		if frame == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(frame, "data: "))
	}
	return out
}

func TestOrchestrator_Buffered(t *testing.T) {
	backendBody := []byte(`{"id":"chatcmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hi"}}]}`)

	var seen *transaction.Transaction
	root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		seen = tx
		tx.Response = &transaction.Response{
			StatusCode: http.StatusOK,
			Header: http.Header{
				"Content-Type":      {"application/json"},
				"X-Backend":         {"upstream"},
				"Transfer-Encoding": {"chunked"},
			},
			Body: backendBody,
		}
		return tx, nil
	})

	o := NewOrchestrator(staticRoot{root}, Options{})
	req := postChat(chatBody)
	req = req.WithContext(logging.WithRequestID(req.Context(), "req-42"))
	w := serve(t, o, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	if w.Body.String() != string(backendBody) {
		t.Errorf("body = %s, want backend body unchanged", w.Body.String())
	}
	if w.Header().Get("X-Backend") != "upstream" || w.Header().Get("Transfer-Encoding") != "" {
		t.Errorf("headers = %v", w.Header())
	}
	if seen == nil || seen.ID != "req-42" {
		t.Fatalf("transaction id = %v, want request id", seen)
	}
	if seen.Request.Model() != "gpt-4" || seen.Request.Header.Get("Content-Type") != "application/json" {
		t.Errorf("request = %+v", seen.Request)
	}
}

func TestOrchestrator_Streaming(t *testing.T) {
	it := &trackingIterator{chunks: textChunks("a", "b", "c", "d", "e")}
	root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		tx.Response = &transaction.Response{StatusCode: http.StatusOK, Stream: it}
		return tx, nil
	})

	w := serve(t, NewOrchestrator(staticRoot{root}, Options{}), postChat(`{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"hi"}]}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("Cache-Control") != "no-cache" || w.Header().Get("X-Accel-Buffering") != "no" {
		t.Errorf("headers = %v", w.Header())
	}

	frames := sseFrames(w.Body.String())
	if len(frames) != 6 {
		t.Fatalf("got %d frames, want 5 chunks and [DONE]: %q", len(frames), w.Body.String())
	}
	var text strings.Builder
	for _, f := range frames[:5] {
		s, ok := streaming.Chunk{Data: []byte(f)}.Content()
		if !ok {
			t.Fatalf("frame %q has no content", f)
		}
		text.WriteString(s)
	}
	if text.String() != "abcde" {
		t.Errorf("streamed text = %q, want abcde", text.String())
	}
	if frames[5] != streaming.DoneMarker {
		t.Errorf("last frame = %q, want [DONE]", frames[5])
	}
	if !it.closed {
		t.Error("iterator was not closed")
	}
}

func TestOrchestrator_PolicyError(t *testing.T) {
	it := &trackingIterator{chunks: textChunks("never")}
	root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		tx.Response = &transaction.Response{Stream: it}
		return tx, policy.NewError("auth", http.StatusUnauthorized, "invalid api key").
			WithCode("invalid_api_key").
			WithCause(errors.New("lookup table says no"))
	})

	w := serve(t, NewOrchestrator(staticRoot{root}, Options{}), postChat(chatBody))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, encoder must not run", ct)
	}
	detail := decodeError(t, w)
	if detail.Message != "invalid api key" || detail.Code != "invalid_api_key" || detail.Type != types.ErrorTypeAuthentication {
		t.Errorf("error = %+v", detail)
	}
	if strings.Contains(w.Body.String(), "lookup table") {
		t.Error("cause leaked to the client")
	}
	if !it.closed || it.pos != 0 {
		t.Errorf("attached stream closed=%v pulled=%d, want closed and untouched", it.closed, it.pos)
	}
}

func TestOrchestrator_PolicyErrorDefaults(t *testing.T) {
	root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		return tx, &policy.Error{Policy: "root"}
	})

	w := serve(t, NewOrchestrator(staticRoot{root}, Options{}), postChat(chatBody))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	detail := decodeError(t, w)
	if detail.Code != types.CodePolicyError || detail.Message != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("error = %+v", detail)
	}
}

func TestOrchestrator_UnexpectedErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error)
	}{
		{
			name: "plain error",
			fn: func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
				return tx, errors.New("database password rejected")
			},
		},
		{
			name: "panic",
			fn: func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
				panic("database password rejected")
			},
		},
		{
			name: "no response",
			fn: func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
				return tx, nil
			},
		},
		{
			name: "nil transaction and error",
			fn: func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
				return nil, errors.New("database password rejected")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, NewOrchestrator(staticRoot{newFuncPolicy(tt.fn)}, Options{}), postChat(chatBody))

			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", w.Code)
			}
			detail := decodeError(t, w)
			if detail.Message != types.GenericInternalMessage || detail.Code != types.CodeInternalError {
				t.Errorf("error = %+v", detail)
			}
			if strings.Contains(w.Body.String(), "password") {
				t.Error("internal detail leaked to the client")
			}
		})
	}
}

func TestOrchestrator_RejectsBeforePolicies(t *testing.T) {
	called := false
	root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		called = true
		return tx, nil
	})

	tests := []struct {
		name       string
		req        *http.Request
		maxBody    int64
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong method",
			req:        httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil),
			wantStatus: http.StatusMethodNotAllowed,
			wantCode:   types.CodeMethodNotAllowed,
		},
		{
			name:       "body too large",
			req:        postChat(chatBody),
			maxBody:    16,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   types.CodeRequestTooLarge,
		},
		{
			name:       "invalid json",
			req:        postChat(`{"model":`),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.CodeInvalidJSON,
		},
		{
			name:       "missing model",
			req:        postChat(`{"messages":[{"role":"user","content":"hi"}]}`),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.CodeMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			o := NewOrchestrator(staticRoot{root}, Options{MaxBodyBytes: tt.maxBody})
			w := serve(t, o, tt.req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeError(t, w).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
			if called {
				t.Error("policy tree ran for a rejected request")
			}
		})
	}

	w := serve(t, NewOrchestrator(staticRoot{root}, Options{}), httptest.NewRequest(http.MethodPut, "/v1/chat/completions", nil))
	if w.Header().Get("Allow") != http.MethodPost {
		t.Errorf("Allow = %q", w.Header().Get("Allow"))
	}
}

func TestOrchestrator_NoTreeLoaded(t *testing.T) {
	w := serve(t, NewOrchestrator(staticRoot{}, Options{}), postChat(chatBody))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if got := decodeError(t, w).Code; got != types.CodePolicyNotLoaded {
		t.Errorf("code = %q", got)
	}
}

func TestOrchestrator_MidStreamError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "source failure", err: errors.New("connection reset"), wantCode: types.CodeStreamError},
		{name: "policy error", err: policy.NewError("guard", http.StatusUnprocessableEntity, "blocked").WithCode("content_filtered"), wantCode: "content_filtered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &trackingIterator{chunks: textChunks("a", "b", "c"), failAt: 2, failErr: tt.err}
			root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
				tx.Response = &transaction.Response{Stream: it}
				return tx, nil
			})

			w := serve(t, NewOrchestrator(staticRoot{root}, Options{}), postChat(chatBody))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; headers are sent before the first chunk", w.Code)
			}
			frames := sseFrames(w.Body.String())
			if len(frames) != 4 {
				t.Fatalf("frames = %q, want 2 chunks, error, [DONE]", frames)
			}
			var resp types.ErrorResponse
			if err := json.Unmarshal([]byte(frames[2]), &resp); err != nil {
				t.Fatalf("error frame %q: %v", frames[2], err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
			if frames[3] != streaming.DoneMarker {
				t.Errorf("last frame = %q", frames[3])
			}
			if !it.closed {
				t.Error("iterator was not closed")
			}
		})
	}
}

func TestOrchestrator_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	it := &trackingIterator{
		chunks: textChunks("a", "b", "c", "d"),
		afterN: func(n int) {
			if n == 1 {
				cancel()
			}
		},
	}
	root := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		tx.Response = &transaction.Response{Stream: it}
		return tx, nil
	})

	w := serve(t, NewOrchestrator(staticRoot{root}, Options{}), postChat(chatBody).WithContext(ctx))

	if !it.closed {
		t.Fatal("iterator was not closed after disconnect")
	}
	if it.pos != 1 {
		t.Errorf("pulled %d chunks after disconnect, want 1", it.pos)
	}
	if strings.Contains(w.Body.String(), streaming.DoneMarker) {
		t.Error("terminator written to a disconnected client")
	}
}

func TestOrchestrator_Metrics(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)

	ok := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		tx.Response = &transaction.Response{StatusCode: 200, Body: []byte(`{}`)}
		return tx, nil
	})
	denied := newFuncPolicy(func(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
		return tx, policy.NewError("auth", http.StatusUnauthorized, "no")
	})

	serve(t, NewOrchestrator(staticRoot{ok}, Options{Metrics: collector}), postChat(chatBody))
	serve(t, NewOrchestrator(staticRoot{ok}, Options{Metrics: collector}), postChat(chatBody))
	serve(t, NewOrchestrator(staticRoot{denied}, Options{Metrics: collector}), postChat(chatBody))

	want := `
# HELP luthien_proxy_requests_total Total number of chat completion requests handled
# TYPE luthien_proxy_requests_total counter
luthien_proxy_requests_total{outcome="rejected",streaming="false"} 1
luthien_proxy_requests_total{outcome="success",streaming="false"} 2
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(want), "luthien_proxy_requests_total"); err != nil {
		t.Error(err)
	}
}
