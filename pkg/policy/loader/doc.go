// Package loader builds policy trees from named configurations.
//
// A Loader reads policy records from a store.Store and instantiates them
// through a TypeTable. Composite kinds (sequential, conditional) refer to
// their children by name; the loader resolves those references recursively
// and rejects reference cycles with a CircularPolicyReferenceError.
//
// Atomic kinds are registered with Register, which decodes the record's
// free-form config map into a typed parameter struct:
//
//	type headerParams struct {
//	    Name  string `mapstructure:"name"`
//	    Value string `mapstructure:"value"`
//	}
//
//	loader.Register(types, "add_header", func(name string, p headerParams, deps loader.Dependencies) (policy.Policy, error) {
//	    return newAddHeader(name, p), nil
//	})
//
// Every constructor receives the full Dependencies bundle and keeps only
// what it uses. Loaded policies are wrapped with policy.Instrument.
package loader
