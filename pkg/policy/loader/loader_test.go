package loader

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/store"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/transaction"
)

const traceKey = "trace"

type markParams struct {
	Label string `mapstructure:"label"`
}

// markPolicy appends its label (or name) to the transaction's trace.
type markPolicy struct {
	policy.Base
	label string
}

func (m *markPolicy) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	trace, _ := tx.Data[traceKey].([]string)
	tx.Data[traceKey] = append(trace, m.label)
	return tx, nil
}

type limitParams struct {
	Max     int           `mapstructure:"max"`
	Timeout time.Duration `mapstructure:"timeout"`
	Tags    []string      `mapstructure:"tags"`
}

func (p *limitParams) Validate() error {
	if p.Max < 0 {
		return fmt.Errorf("max must not be negative")
	}
	return nil
}

func testTypes(t *testing.T, captured *limitParams) *TypeTable {
	t.Helper()
	types := NewTypeTable()
	Register(types, "mark", func(name string, p markParams, _ Dependencies) (policy.Policy, error) {
		label := p.Label
		if label == "" {
			label = name
		}
		return &markPolicy{Base: policy.NewBase(name, "mark"), label: label}, nil
	})
	Register(types, "limit", func(name string, p limitParams, _ Dependencies) (policy.Policy, error) {
		if captured != nil {
			*captured = p
		}
		return policy.Noop(name), nil
	})
	return types
}

func newLoader(t *testing.T, records ...store.Record) *Loader {
	t.Helper()
	for i := range records {
		records[i].Active = true
	}
	return New(store.NewMemoryStore(records...), testTypes(t, nil), Dependencies{Logger: logging.Discard()})
}

func seq(name string, children ...string) store.Record {
	list := make([]any, len(children))
	for i, c := range children {
		list[i] = c
	}
	return store.Record{Name: name, Type: policy.TypeSequential, Config: map[string]any{"policies": list}}
}

func mark(name string) store.Record {
	return store.Record{Name: name, Type: "mark"}
}

func TestLoad_SequentialShape(t *testing.T) {
	l := newLoader(t, seq("root", "A", "B", "C"), mark("A"), mark("B"), mark("C"))

	p, err := l.Load(context.Background(), "root")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got := Describe(p)
	want := Node{Name: "root", Type: policy.TypeSequential, Children: []Node{
		{Name: "A", Type: "mark"},
		{Name: "B", Type: "mark"},
		{Name: "C", Type: "mark"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Describe() = %+v, want %+v", got, want)
	}

	tx := transaction.New("tx", nil)
	if _, err := p.Apply(context.Background(), tx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if trace := tx.Data[traceKey].([]string); strings.Join(trace, ",") != "A,B,C" {
		t.Errorf("application order = %v, want A,B,C", trace)
	}
}

func TestLoad_NestedAndDiamond(t *testing.T) {
	l := newLoader(t,
		seq("root", "left", "right"),
		seq("left", "shared"),
		seq("right", "shared"),
		mark("shared"),
	)

	p, err := l.Load(context.Background(), "root")
	if err != nil {
		t.Fatalf("Load() of a diamond should succeed, got %v", err)
	}
	out := Describe(p).String()
	want := "root (sequential)\n  left (sequential)\n    shared (mark)\n  right (sequential)\n    shared (mark)\n"
	if out != want {
		t.Errorf("String() =\n%s\nwant\n%s", out, want)
	}
}

func TestLoad_Cycles(t *testing.T) {
	tests := []struct {
		name      string
		records   []store.Record
		wantCycle []string
	}{
		{
			name:      "two policies",
			records:   []store.Record{seq("A", "B"), seq("B", "A")},
			wantCycle: []string{"A", "B", "A"},
		},
		{
			name:      "self reference",
			records:   []store.Record{seq("A", "A")},
			wantCycle: []string{"A", "A"},
		},
		{
			name:      "below the root",
			records:   []store.Record{seq("A", "B"), seq("B", "C"), seq("C", "B")},
			wantCycle: []string{"B", "C", "B"},
		},
		{
			name: "through a conditional default",
			records: []store.Record{
				seq("A", "B"),
				{Name: "B", Type: policy.TypeConditional, Config: map[string]any{"default": "A"}},
			},
			wantCycle: []string{"A", "B", "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newLoader(t, tt.records...).Load(context.Background(), "A")
			var cerr *CircularPolicyReferenceError
			if !errors.As(err, &cerr) {
				t.Fatalf("Load() error = %v, want CircularPolicyReferenceError", err)
			}
			if !reflect.DeepEqual(cerr.Cycle, tt.wantCycle) {
				t.Errorf("Cycle = %v, want %v", cerr.Cycle, tt.wantCycle)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records []store.Record
		check   func(t *testing.T, err error)
	}{
		{
			name:    "missing root",
			records: nil,
			check: func(t *testing.T, err error) {
				var nf *ConfigNotFoundError
				if !errors.As(err, &nf) || nf.Name != "root" || nf.Inactive {
					t.Errorf("error = %v, want not found for root", err)
				}
			},
		},
		{
			name:    "missing child",
			records: []store.Record{seq("root", "A", "ghost"), mark("A")},
			check: func(t *testing.T, err error) {
				var nf *ConfigNotFoundError
				if !errors.As(err, &nf) || nf.Name != "ghost" {
					t.Errorf("error = %v, want not found for ghost", err)
				}
			},
		},
		{
			name:    "unknown type",
			records: []store.Record{{Name: "root", Type: "teleport"}},
			check: func(t *testing.T, err error) {
				var ut *UnknownTypeError
				if !errors.As(err, &ut) || ut.Type != "teleport" {
					t.Errorf("error = %v, want unknown type teleport", err)
				}
			},
		},
		{
			name:    "undecodable params",
			records: []store.Record{{Name: "root", Type: "limit", Config: map[string]any{"max": "lots"}}},
			check: func(t *testing.T, err error) {
				var de *ConfigDecodeError
				if !errors.As(err, &de) || de.Name != "root" {
					t.Errorf("error = %v, want decode error", err)
				}
			},
		},
		{
			name:    "params fail validation",
			records: []store.Record{{Name: "root", Type: "limit", Config: map[string]any{"max": -1}}},
			check: func(t *testing.T, err error) {
				var de *ConfigDecodeError
				if !errors.As(err, &de) || !strings.Contains(err.Error(), "negative") {
					t.Errorf("error = %v, want validation failure", err)
				}
			},
		},
		{
			name: "bad branch condition",
			records: []store.Record{
				{Name: "root", Type: policy.TypeConditional, Config: map[string]any{
					"branches": []any{map[string]any{"when": map[string]any{"path": "x", "op": "approx"}, "policy": "A"}},
				}},
				mark("A"),
			},
			check: func(t *testing.T, err error) {
				var de *ConfigDecodeError
				if !errors.As(err, &de) || de.Type != policy.TypeConditional {
					t.Errorf("error = %v, want decode error on conditional", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newLoader(t, tt.records...).Load(context.Background(), "root")
			if err == nil {
				t.Fatalf("Load() = %v, want error", p)
			}
			if p != nil {
				t.Error("Load() returned a policy alongside an error")
			}
			tt.check(t, err)
		})
	}
}

func TestLoad_InactiveRecord(t *testing.T) {
	s := store.NewMemoryStore(
		store.Record{Name: "root", Type: policy.TypeSequential, Active: true, Config: map[string]any{"policies": []any{"off"}}},
		store.Record{Name: "off", Type: "mark", Active: false},
	)
	_, err := New(s, testTypes(t, nil), Dependencies{}).Load(context.Background(), "root")

	var nf *ConfigNotFoundError
	if !errors.As(err, &nf) || nf.Name != "off" || !nf.Inactive {
		t.Errorf("Load() error = %v, want inactive off", err)
	}
}

func TestLoad_Conditional(t *testing.T) {
	l := newLoader(t,
		store.Record{Name: "router", Type: policy.TypeConditional, Config: map[string]any{
			"branches": []any{
				map[string]any{
					"when":   map[string]any{"path": "request.payload.model", "op": "equals", "value": "gpt-4"},
					"policy": "big",
				},
				map[string]any{
					"when":   `request.model.startsWith("gpt-3")`,
					"policy": "small",
				},
			},
			"default": "other",
		}},
		mark("big"), mark("small"), mark("other"),
	)

	p, err := l.Load(context.Background(), "router")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	node := Describe(p)
	if len(node.Children) != 3 || node.Children[2].When != "default" || node.Children[0].When == "" {
		t.Errorf("Describe() = %+v", node)
	}

	tests := []struct {
		model string
		want  string
	}{
		{model: "gpt-4", want: "big"},
		{model: "gpt-3.5-turbo", want: "small"},
		{model: "llama", want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tx := transaction.New("tx", &transaction.Request{Payload: map[string]any{"model": tt.model}})
			if _, err := p.Apply(context.Background(), tx); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			trace := tx.Data[traceKey].([]string)
			if len(trace) != 1 || trace[0] != tt.want {
				t.Errorf("applied %v, want [%s]", trace, tt.want)
			}
		})
	}
}

func TestLoad_InstrumentsEveryNode(t *testing.T) {
	l := newLoader(t, seq("root", "A"), mark("A"))
	p, err := l.Load(context.Background(), "root")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if policy.Unwrap(p) == p {
		t.Error("root is not instrumented")
	}
	child := policy.Unwrap(p).(policy.Parent).Children()[0]
	if policy.Unwrap(child) == child {
		t.Error("child is not instrumented")
	}
	if child.Name() != "A" || child.Type() != "mark" {
		t.Errorf("child = %s (%s)", child.Name(), child.Type())
	}
}

func TestLoad_FreshTreePerCall(t *testing.T) {
	l := newLoader(t, mark("A"))
	first, _ := l.Load(context.Background(), "A")
	second, _ := l.Load(context.Background(), "A")
	if policy.Unwrap(first) == policy.Unwrap(second) {
		t.Error("Load() returned the same instance twice")
	}
}

func TestLoad_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newLoader(t, mark("A")).Load(ctx, "A"); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestRegister_DecodesWeakly(t *testing.T) {
	var got limitParams
	types := testTypes(t, &got)
	s := store.NewMemoryStore(store.Record{Name: "lim", Type: "limit", Active: true, Config: map[string]any{
		"max":     "5",
		"timeout": "2s",
		"tags":    []any{"a", "b"},
		"unknown": true,
	}})

	if _, err := New(s, types, Dependencies{}).Load(context.Background(), "lim"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Max != 5 || got.Timeout != 2*time.Second || len(got.Tags) != 2 {
		t.Errorf("decoded params = %+v", got)
	}
}

func TestTypeTable(t *testing.T) {
	types := testTypes(t, nil)

	if !types.Has("mark") || !types.Has(policy.TypeSequential) || types.Has("teleport") {
		t.Error("Has() reported wrong membership")
	}
	want := []string{"conditional", "limit", "mark", "sequential"}
	if got := types.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}

	for _, typ := range []string{"mark", policy.TypeSequential} {
		t.Run("register "+typ, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("registering %q did not panic", typ)
				}
			}()
			types.RegisterConstructor(typ, func(string, map[string]any, Dependencies) (policy.Policy, error) {
				return nil, nil
			})
		})
	}
}
