package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/condition"
	"mercator-hq/luthien/pkg/policy/store"
)

// Loader instantiates policy trees from stored records.
type Loader struct {
	store  store.Store
	types  *TypeTable
	deps   Dependencies
	logger *slog.Logger
}

// New returns a loader reading records from s.
func New(s store.Store, types *TypeTable, deps Dependencies) *Loader {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = s
	}
	return &Loader{
		store:  s,
		types:  types,
		deps:   deps,
		logger: logger.With("component", "policy.loader"),
	}
}

// sequentialParams is the config of a sequential record.
type sequentialParams struct {
	Policies []string `mapstructure:"policies"`
}

// conditionalParams is the config of a conditional record.
type conditionalParams struct {
	Branches []struct {
		When   any    `mapstructure:"when"`
		Policy string `mapstructure:"policy"`
	} `mapstructure:"branches"`
	Default string `mapstructure:"default"`
}

// Load builds the policy named name and everything it references. Nothing
// is cached: every call produces a fresh tree.
func (l *Loader) Load(ctx context.Context, name string) (policy.Policy, error) {
	p, err := l.load(ctx, name, nil)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to load policy", "policy", name, "error", err)
		return nil, err
	}
	return p, nil
}

// load resolves name with path holding the chain of composites currently
// being built.
func (l *Loader) load(ctx context.Context, name string, path []string) (policy.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, ancestor := range path {
		if ancestor == name {
			cycle := append(append([]string(nil), path[i:]...), name)
			return nil, &CircularPolicyReferenceError{Cycle: cycle}
		}
	}

	rec, err := l.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ConfigNotFoundError{Name: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policy %q: %w", name, err)
	}
	if !rec.Active {
		return nil, &ConfigNotFoundError{Name: name, Inactive: true}
	}

	path = append(path[:len(path):len(path)], name)

	var p policy.Policy
	switch rec.Type {
	case policy.TypeSequential:
		p, err = l.buildSequential(ctx, rec, path)
	case policy.TypeConditional:
		p, err = l.buildConditional(ctx, rec, path)
	default:
		ctor, ok := l.types.lookup(rec.Type)
		if !ok {
			return nil, &UnknownTypeError{Name: rec.Name, Type: rec.Type}
		}
		p, err = ctor(rec.Name, rec.Config, l.deps)
		if err != nil {
			err = &ConfigDecodeError{Name: rec.Name, Type: rec.Type, Cause: err}
		}
	}
	if err != nil {
		return nil, err
	}

	l.logger.DebugContext(ctx, "policy built", "policy", rec.Name, "type", rec.Type, "depth", len(path)-1)
	return policy.Instrument(p, l.deps.Instrumentation), nil
}

func (l *Loader) buildSequential(ctx context.Context, rec *store.Record, path []string) (policy.Policy, error) {
	var params sequentialParams
	if err := Decode(rec.Config, &params); err != nil {
		return nil, &ConfigDecodeError{Name: rec.Name, Type: rec.Type, Cause: err}
	}

	children := make([]policy.Policy, 0, len(params.Policies))
	for _, childName := range params.Policies {
		child, err := l.load(ctx, childName, path)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return policy.NewSequential(rec.Name, children...), nil
}

func (l *Loader) buildConditional(ctx context.Context, rec *store.Record, path []string) (policy.Policy, error) {
	var params conditionalParams
	if err := Decode(rec.Config, &params); err != nil {
		return nil, &ConfigDecodeError{Name: rec.Name, Type: rec.Type, Cause: err}
	}

	branches := make([]policy.Branch, 0, len(params.Branches))
	for i, b := range params.Branches {
		if b.Policy == "" {
			return nil, &ConfigDecodeError{Name: rec.Name, Type: rec.Type, Cause: fmt.Errorf("branch %d has no policy", i)}
		}
		when, err := condition.Parse(b.When)
		if err != nil {
			return nil, &ConfigDecodeError{Name: rec.Name, Type: rec.Type, Cause: fmt.Errorf("branch %d: %w", i, err)}
		}
		child, err := l.load(ctx, b.Policy, path)
		if err != nil {
			return nil, err
		}
		branches = append(branches, policy.Branch{When: when, Policy: child})
	}

	var fallback policy.Policy
	if params.Default != "" {
		var err error
		fallback, err = l.load(ctx, params.Default, path)
		if err != nil {
			return nil, err
		}
	}
	return policy.NewConditional(rec.Name, branches, fallback), nil
}
