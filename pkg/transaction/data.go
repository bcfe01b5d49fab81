package transaction

// Well-known Data keys shared by the built-in policies.
const (
	// KeyPrincipal holds the *auth.Principal resolved by authentication.
	KeyPrincipal = "principal"

	// KeyPrincipalID holds the resolved principal's id as a string.
	KeyPrincipalID = "principal_id"

	// KeyBackendResponse holds the raw backend body kept for later policies.
	KeyBackendResponse = "backend_response"
)

// Data is the open key/value map policies use to communicate. Keys are a
// convention between cooperating policies.
type Data map[string]any

// Get returns the value stored under key.
func (d Data) Get(key string) (any, bool) {
	v, ok := d[key]
	return v, ok
}

// Set stores value under key.
func (d Data) Set(key string, value any) {
	d[key] = value
}

// GetString returns the value under key if it is a string.
func (d Data) GetString(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Delete removes key.
func (d Data) Delete(key string) {
	delete(d, key)
}

// CloneValue returns a deep copy of the maps and slices in v so the result
// shares no mutable state with v. Other values are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
