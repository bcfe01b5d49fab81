package loader

import (
	"fmt"
	"sort"
	"sync"

	"mercator-hq/luthien/pkg/policy"

	"github.com/go-viper/mapstructure/v2"
)

// Constructor builds an atomic policy from a raw config map.
type Constructor func(name string, config map[string]any, deps Dependencies) (policy.Policy, error)

// Validator is implemented by parameter structs that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// TypeTable maps type names to constructors. The composite kinds are
// reserved and handled by the Loader itself.
type TypeTable struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewTypeTable returns an empty table.
func NewTypeTable() *TypeTable {
	return &TypeTable{constructors: make(map[string]Constructor)}
}

// RegisterConstructor adds a raw constructor. It panics if typ is reserved
// or already registered.
func (t *TypeTable) RegisterConstructor(typ string, c Constructor) {
	if typ == policy.TypeSequential || typ == policy.TypeConditional {
		panic(fmt.Sprintf("loader: type %q is reserved", typ))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.constructors[typ]; dup {
		panic(fmt.Sprintf("loader: type %q registered twice", typ))
	}
	t.constructors[typ] = c
}

// Register adds a constructor taking typed parameters P. The record's
// config is decoded into P before build is called.
func Register[P any](t *TypeTable, typ string, build func(name string, params P, deps Dependencies) (policy.Policy, error)) {
	t.RegisterConstructor(typ, func(name string, config map[string]any, deps Dependencies) (policy.Policy, error) {
		var params P
		if err := Decode(config, &params); err != nil {
			return nil, err
		}
		if v, ok := any(&params).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		return build(name, params, deps)
	})
}

// Has reports whether typ can be loaded.
func (t *TypeTable) Has(typ string) bool {
	if typ == policy.TypeSequential || typ == policy.TypeConditional {
		return true
	}
	_, ok := t.lookup(typ)
	return ok
}

// Types returns every loadable type name, sorted.
func (t *TypeTable) Types() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.constructors)+2)
	for name := range t.constructors {
		names = append(names, name)
	}
	t.mu.RUnlock()

	names = append(names, policy.TypeSequential, policy.TypeConditional)
	sort.Strings(names)
	return names
}

func (t *TypeTable) lookup(typ string) (Constructor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.constructors[typ]
	return c, ok
}

// Decode copies a config map into out. Unknown keys are ignored, scalar
// types are converted where unambiguous ("5" to 5), and duration strings
// decode into time.Duration fields.
func Decode(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(config)
}
