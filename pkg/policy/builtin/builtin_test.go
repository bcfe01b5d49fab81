package builtin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/policy/store"
	"mercator-hq/luthien/pkg/security/auth"
	"mercator-hq/luthien/pkg/streaming"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/transaction"
)

// build loads a single policy of the given type through the type table.
func build(t *testing.T, typ string, cfg map[string]any, deps loader.Dependencies) policy.Policy {
	t.Helper()
	p, err := tryBuild(typ, cfg, deps)
	if err != nil {
		t.Fatalf("build %s: %v", typ, err)
	}
	return p
}

func tryBuild(typ string, cfg map[string]any, deps loader.Dependencies) (policy.Policy, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	s := store.NewMemoryStore(store.Record{Name: "p", Type: typ, Config: cfg, Active: true})
	return loader.New(s, NewTypeTable(), deps).Load(context.Background(), "p")
}

func chatTx(payload map[string]any) *transaction.Transaction {
	if payload == nil {
		payload = map[string]any{
			"model":    "gpt-4",
			"messages": []any{map[string]any{"role": "user", "content": "hello there"}},
		}
	}
	return transaction.New("tx-1", &transaction.Request{
		Method:  http.MethodPost,
		URL:     "/v1/chat/completions",
		Header:  http.Header{},
		Payload: payload,
	})
}

func streamingTx() *transaction.Transaction {
	return chatTx(map[string]any{
		"model":    "gpt-4",
		"stream":   true,
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	})
}

func wantPolicyError(t *testing.T, err error, status int) *policy.Error {
	t.Helper()
	perr, ok := policy.AsError(err)
	if !ok {
		t.Fatalf("error = %v, want *policy.Error", err)
	}
	if perr.StatusCode() != status {
		t.Errorf("status = %d, want %d", perr.StatusCode(), status)
	}
	return perr
}

func drain(t *testing.T, tx *transaction.Transaction) []streaming.Chunk {
	t.Helper()
	if !tx.IsStreaming() {
		t.Fatal("transaction is not streaming")
	}
	chunks, err := streaming.Collect(context.Background(), tx.Response.Stream)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return chunks
}

func TestNewTypeTable(t *testing.T) {
	types := NewTypeTable()
	for _, typ := range []string{
		policy.TypeNoop, TypeAuthenticate, TypeAddHeader, TypeRemoveHeader, TypeAddBackendKey,
		TypeSetModel, TypeSetData, TypeBlock, TypeRespond, TypeForward, TypeOpenAIForward,
		TypeUppercase, TypeRegexReplace, TypeResponseGuard, TypeAudit,
		policy.TypeSequential, policy.TypeConditional,
	} {
		if !types.Has(typ) {
			t.Errorf("type %q not registered", typ)
		}
	}
}

func TestConstructorsRejectBadConfig(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		cfg  map[string]any
		deps loader.Dependencies
	}{
		{name: "add_header without name", typ: TypeAddHeader, cfg: map[string]any{"value": "x"}},
		{name: "remove_header without names", typ: TypeRemoveHeader},
		{name: "add_backend_key without key", typ: TypeAddBackendKey},
		{name: "set_model without model", typ: TypeSetModel},
		{name: "set_data without key", typ: TypeSetData, cfg: map[string]any{"value": 1}},
		{name: "respond without content", typ: TypeRespond},
		{name: "forward without url", typ: TypeForward},
		{name: "authenticate without lookup", typ: TypeAuthenticate},
		{name: "audit without sink", typ: TypeAudit},
		{name: "regex_replace bad pattern", typ: TypeRegexReplace, cfg: map[string]any{"pattern": "("}},
		{name: "regex_replace bad target", typ: TypeRegexReplace, cfg: map[string]any{"pattern": "x", "target": "headers"}},
		{name: "response_guard without deny", typ: TypeResponseGuard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tryBuild(tt.typ, tt.cfg, tt.deps)
			var de *loader.ConfigDecodeError
			if !errors.As(err, &de) {
				t.Errorf("error = %v, want ConfigDecodeError", err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	lookup := auth.NewStaticLookup([]config.APIKeyConfig{
		{Key: "lk-good", Principal: "alice"},
		{Key: "lk-off", Principal: "bob", Disabled: true},
	})
	p := build(t, TypeAuthenticate, nil, loader.Dependencies{Credentials: lookup})

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantID     string
	}{
		{name: "valid bearer", header: "Authorization", value: "Bearer lk-good", wantID: "alice"},
		{name: "valid x-api-key", header: "X-API-Key", value: "lk-good", wantID: "alice"},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "unknown", header: "Authorization", value: "Bearer lk-bad", wantStatus: http.StatusUnauthorized},
		{name: "disabled", header: "Authorization", value: "Bearer lk-off", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := chatTx(nil)
			if tt.header != "" {
				tx.Request.Header.Set(tt.header, tt.value)
			}
			_, err := p.Apply(context.Background(), tx)
			if tt.wantStatus != 0 {
				perr := wantPolicyError(t, err, tt.wantStatus)
				if perr.Code != "invalid_api_key" || perr.Policy != "p" {
					t.Errorf("error = %+v", perr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if id, _ := tx.Data.GetString(transaction.KeyPrincipalID); id != tt.wantID {
				t.Errorf("principal id = %q, want %q", id, tt.wantID)
			}
			if tx.Request.Header.Get(tt.header) != "" {
				t.Errorf("client credential header %s was not removed", tt.header)
			}
		})
	}
}

func TestAuthenticate_CustomStatusAndKeepHeader(t *testing.T) {
	lookup := auth.NewStaticLookup([]config.APIKeyConfig{{Key: "k", Principal: "p1"}})
	p := build(t, TypeAuthenticate, map[string]any{
		"status":      403,
		"keep_header": true,
		"sources":     []any{map[string]any{"header": "X-Client-Key"}},
	}, loader.Dependencies{Credentials: lookup})

	tx := chatTx(nil)
	tx.Request.Header.Set("Authorization", "Bearer k")
	_, err := p.Apply(context.Background(), tx)
	wantPolicyError(t, err, http.StatusForbidden)

	tx = chatTx(nil)
	tx.Request.Header.Set("X-Client-Key", "k")
	if _, err := p.Apply(context.Background(), tx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if tx.Request.Header.Get("X-Client-Key") != "k" {
		t.Error("keep_header did not keep the header")
	}
}

type failingLookup struct{}

func (failingLookup) Lookup(context.Context, string) (*auth.Principal, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestAuthenticate_LookupFailureIsUnexpected(t *testing.T) {
	p := build(t, TypeAuthenticate, nil, loader.Dependencies{Credentials: failingLookup{}})
	tx := chatTx(nil)
	tx.Request.Header.Set("Authorization", "Bearer x")

	_, err := p.Apply(context.Background(), tx)
	if err == nil {
		t.Fatal("Apply() should fail")
	}
	if _, ok := policy.AsError(err); ok {
		t.Errorf("lookup failure surfaced as policy error: %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("error = %v, want wrapped cause", err)
	}
}

func TestRequestPolicies(t *testing.T) {
	deps := loader.Dependencies{Settings: loader.Settings{BackendAPIKey: "sk-backend"}}

	tests := []struct {
		name  string
		typ   string
		cfg   map[string]any
		setup func(tx *transaction.Transaction)
		check func(t *testing.T, tx *transaction.Transaction)
	}{
		{
			name: "add_header",
			typ:  TypeAddHeader,
			cfg:  map[string]any{"name": "X-Team", "value": "ml"},
			check: func(t *testing.T, tx *transaction.Transaction) {
				if tx.Request.Header.Get("X-Team") != "ml" {
					t.Errorf("X-Team = %q", tx.Request.Header.Get("X-Team"))
				}
			},
		},
		{
			name:  "add_header keeps existing",
			typ:   TypeAddHeader,
			cfg:   map[string]any{"name": "X-Team", "value": "ml", "overwrite": false},
			setup: func(tx *transaction.Transaction) { tx.Request.Header.Set("X-Team", "ops") },
			check: func(t *testing.T, tx *transaction.Transaction) {
				if tx.Request.Header.Get("X-Team") != "ops" {
					t.Errorf("X-Team = %q, want ops", tx.Request.Header.Get("X-Team"))
				}
			},
		},
		{
			name:  "remove_header",
			typ:   TypeRemoveHeader,
			cfg:   map[string]any{"names": []any{"Cookie", "X-Debug"}},
			setup: func(tx *transaction.Transaction) { tx.Request.Header.Set("Cookie", "a"); tx.Request.Header.Set("X-Keep", "b") },
			check: func(t *testing.T, tx *transaction.Transaction) {
				if tx.Request.Header.Get("Cookie") != "" || tx.Request.Header.Get("X-Keep") != "b" {
					t.Errorf("headers = %v", tx.Request.Header)
				}
			},
		},
		{
			name: "add_backend_key",
			typ:  TypeAddBackendKey,
			check: func(t *testing.T, tx *transaction.Transaction) {
				if got := tx.Request.Header.Get("Authorization"); got != "Bearer sk-backend" {
					t.Errorf("Authorization = %q", got)
				}
			},
		},
		{
			name: "add_backend_key custom header",
			typ:  TypeAddBackendKey,
			cfg:  map[string]any{"header": "api-key", "key": "azure-key"},
			check: func(t *testing.T, tx *transaction.Transaction) {
				if got := tx.Request.Header.Get("api-key"); got != "azure-key" {
					t.Errorf("api-key = %q", got)
				}
			},
		},
		{
			name: "set_model",
			typ:  TypeSetModel,
			cfg:  map[string]any{"model": "gpt-4o-mini"},
			check: func(t *testing.T, tx *transaction.Transaction) {
				if tx.Request.Model() != "gpt-4o-mini" {
					t.Errorf("model = %q", tx.Request.Model())
				}
			},
		},
		{
			name: "set_model only if missing",
			typ:  TypeSetModel,
			cfg:  map[string]any{"model": "gpt-4o-mini", "only_if_missing": true},
			check: func(t *testing.T, tx *transaction.Transaction) {
				if tx.Request.Model() != "gpt-4" {
					t.Errorf("model = %q, want gpt-4", tx.Request.Model())
				}
			},
		},
		{
			name: "set_data",
			typ:  TypeSetData,
			cfg:  map[string]any{"key": "tier", "value": "gold"},
			check: func(t *testing.T, tx *transaction.Transaction) {
				if v, _ := tx.Data.GetString("tier"); v != "gold" {
					t.Errorf("tier = %q", v)
				}
			},
		},
		{
			name: "noop",
			typ:  policy.TypeNoop,
			check: func(t *testing.T, tx *transaction.Transaction) {
				if len(tx.Request.Header) != 0 || tx.Response != nil {
					t.Error("noop changed the transaction")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(t, tt.typ, tt.cfg, deps)
			tx := chatTx(nil)
			if tt.setup != nil {
				tt.setup(tx)
			}
			out, err := p.Apply(context.Background(), tx)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			tt.check(t, out)
		})
	}
}

func TestSetData_ValuesAreNotSharedAcrossTransactions(t *testing.T) {
	p := build(t, TypeSetData, map[string]any{
		"key":   "tags",
		"value": map[string]any{"tier": "free", "labels": []any{"a"}},
	}, loader.Dependencies{})

	first, err := p.Apply(context.Background(), chatTx(nil))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	v, _ := first.Data.Get("tags")
	tags := v.(map[string]any)
	tags["tier"] = "changed"
	tags["labels"].([]any)[0] = "changed"

	second, err := p.Apply(context.Background(), chatTx(nil))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	v, _ = second.Data.Get("tags")
	got := v.(map[string]any)
	if got["tier"] != "free" {
		t.Errorf("second tier = %v, want free", got["tier"])
	}
	if got["labels"].([]any)[0] != "a" {
		t.Errorf("second labels = %v, want [a]", got["labels"])
	}
}

func TestBlock(t *testing.T) {
	p := build(t, TypeBlock, map[string]any{"message": "model not allowed"}, loader.Dependencies{})
	_, err := p.Apply(context.Background(), chatTx(nil))
	perr := wantPolicyError(t, err, http.StatusForbidden)
	if perr.Detail != "model not allowed" || perr.Code != "policy_violation" {
		t.Errorf("error = %+v", perr)
	}
}

func TestRespond(t *testing.T) {
	p := build(t, TypeRespond, map[string]any{"content": "hello from the proxy"}, loader.Dependencies{})

	t.Run("buffered", func(t *testing.T) {
		tx, err := p.Apply(context.Background(), chatTx(nil))
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if tx.IsStreaming() || tx.Response.StatusCode != http.StatusOK {
			t.Fatalf("response = %+v", tx.Response)
		}
		text, _ := responseText(tx.Response)
		if text != "hello from the proxy" {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("streaming", func(t *testing.T) {
		tx, err := p.Apply(context.Background(), streamingTx())
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		chunks := drain(t, tx)
		if len(chunks) != 5 {
			t.Errorf("got %d chunks, want 4 words and a finish chunk", len(chunks))
		}
		if got := streaming.Text(chunks); got != "hello from the proxy" {
			t.Errorf("text = %q", got)
		}
	})
}

func TestUppercase_Stream(t *testing.T) {
	p := build(t, TypeUppercase, nil, loader.Dependencies{})
	tx := streamingTx()
	tx.Response = &transaction.Response{
		StatusCode: http.StatusOK,
		Stream: streaming.FromChunks(
			streaming.TextChunk("c", "m", "a"),
			streaming.TextChunk("c", "m", "b"),
			streaming.TextChunk("c", "m", "c"),
		),
	}

	if _, err := p.Apply(context.Background(), tx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	chunks := drain(t, tx)
	var got []string
	for _, c := range chunks {
		s, _ := c.Content()
		got = append(got, s)
	}
	if strings.Join(got, ",") != "A,B,C" {
		t.Errorf("chunks = %v, want A,B,C", got)
	}
}

func TestUppercase_Buffered(t *testing.T) {
	p := build(t, TypeUppercase, nil, loader.Dependencies{})
	tx := chatTx(nil)
	tx.Response = &transaction.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"quiet"}}]}`),
	}
	if _, err := p.Apply(context.Background(), tx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if text, _ := responseText(tx.Response); text != "QUIET" {
		t.Errorf("text = %q, want QUIET", text)
	}

	errTx := chatTx(nil)
	errBody := `{"error":{"message":"quiet"}}`
	errTx.Response = &transaction.Response{StatusCode: http.StatusBadRequest, Body: []byte(errBody)}
	if _, err := p.Apply(context.Background(), errTx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if string(errTx.Response.Body) != errBody {
		t.Error("error response body was rewritten")
	}
}

func TestRegexReplace(t *testing.T) {
	p := build(t, TypeRegexReplace, map[string]any{
		"pattern":     `\d{3}-\d{4}`,
		"replacement": "[phone]",
		"target":      "both",
	}, loader.Dependencies{})

	tx := chatTx(map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "call 555-1234"}},
	})
	tx.Response = &transaction.Response{
		StatusCode: http.StatusOK,
		Stream:     streaming.FromChunks(streaming.TextChunk("c", "m", "dial 555-9876 now")),
	}

	if _, err := p.Apply(context.Background(), tx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	msg := tx.Request.Payload["messages"].([]any)[0].(map[string]any)
	if msg["content"] != "call [phone]" {
		t.Errorf("request content = %v", msg["content"])
	}
	if got := streaming.Text(drain(t, tx)); got != "dial [phone] now" {
		t.Errorf("stream text = %q", got)
	}
}

func TestResponseGuard(t *testing.T) {
	p := build(t, TypeResponseGuard, map[string]any{"deny": []any{`(?i)secret`}}, loader.Dependencies{})

	t.Run("stream passes and is replayed", func(t *testing.T) {
		tx := streamingTx()
		tx.Response = &transaction.Response{Stream: streaming.FromChunks(
			streaming.TextChunk("c", "m", "all "),
			streaming.TextChunk("c", "m", "good"),
		)}
		if _, err := p.Apply(context.Background(), tx); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if got := streaming.Text(drain(t, tx)); got != "all good" {
			t.Errorf("replayed text = %q", got)
		}
	})

	t.Run("match across chunks is rejected", func(t *testing.T) {
		tx := streamingTx()
		tx.Response = &transaction.Response{Stream: streaming.FromChunks(
			streaming.TextChunk("c", "m", "the SEC"),
			streaming.TextChunk("c", "m", "RET is"),
		)}
		_, err := p.Apply(context.Background(), tx)
		perr := wantPolicyError(t, err, http.StatusUnprocessableEntity)
		if perr.Code != "content_filtered" {
			t.Errorf("code = %q", perr.Code)
		}
	})

	t.Run("buffered", func(t *testing.T) {
		tx := chatTx(nil)
		tx.Response = &transaction.Response{Body: []byte(`{"choices":[{"message":{"content":"a secret"}}]}`)}
		_, err := p.Apply(context.Background(), tx)
		wantPolicyError(t, err, http.StatusUnprocessableEntity)
	})

	t.Run("upstream error page passes through", func(t *testing.T) {
		tx := chatTx(nil)
		tx.Response = &transaction.Response{StatusCode: http.StatusBadGateway, Body: []byte("<html>Bad Gateway</html>")}
		out, err := p.Apply(context.Background(), tx)
		if err != nil || out.Response.StatusCode != http.StatusBadGateway {
			t.Errorf("Apply() = %v, %v; want the 502 unchanged", out.Response, err)
		}
	})
}
