package condition

import (
	"fmt"
	"strconv"
	"strings"

	"mercator-hq/luthien/pkg/transaction"
)

// Resolver extracts a value from a transaction. Resolvers are pure: they do
// not mutate the transaction. A path that does not exist resolves to nil.
type Resolver func(tx *transaction.Transaction) (any, error)

// Literal returns a resolver that always yields v.
func Literal(v any) Resolver {
	return func(*transaction.Transaction) (any, error) {
		return v, nil
	}
}

// Path returns a resolver for a dotted path. Supported roots:
//
//	request.method | request.url | request.model | request.stream
//	request.headers.<name>
//	request.payload.<key>[.<key>|.<index>...]
//	response.status | response.streaming
//	response.headers.<name>
//	response.payload.<key>[...]
//	data.<key>[...]
//	transaction.id | transaction.streaming
func Path(path string) (Resolver, error) {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid path %q: must have at least two segments", path)
	}

	root, rest := parts[0], parts[1:]
	switch root {
	case "request":
		return requestResolver(path, rest)
	case "response":
		return responseResolver(path, rest)
	case "data":
		return func(tx *transaction.Transaction) (any, error) {
			return lookup(map[string]any(tx.Data), rest), nil
		}, nil
	case "transaction":
		if len(rest) != 1 {
			return nil, fmt.Errorf("invalid path %q", path)
		}
		switch rest[0] {
		case "id":
			return func(tx *transaction.Transaction) (any, error) { return tx.ID, nil }, nil
		case "streaming":
			return func(tx *transaction.Transaction) (any, error) { return tx.IsStreaming(), nil }, nil
		}
		return nil, fmt.Errorf("unknown transaction field %q", rest[0])
	default:
		return nil, fmt.Errorf("unknown path root %q in %q", root, path)
	}
}

func requestResolver(path string, rest []string) (Resolver, error) {
	switch rest[0] {
	case "method", "url", "model", "stream":
		if len(rest) != 1 {
			return nil, fmt.Errorf("invalid path %q", path)
		}
		field := rest[0]
		return func(tx *transaction.Transaction) (any, error) {
			r := tx.Request
			if r == nil {
				return nil, nil
			}
			switch field {
			case "method":
				return r.Method, nil
			case "url":
				return r.URL, nil
			case "model":
				return r.Model(), nil
			default:
				return r.Stream(), nil
			}
		}, nil

	case "headers":
		if len(rest) != 2 {
			return nil, fmt.Errorf("invalid header path %q", path)
		}
		name := rest[1]
		return func(tx *transaction.Transaction) (any, error) {
			if tx.Request == nil || tx.Request.Header == nil {
				return nil, nil
			}
			if v := tx.Request.Header.Values(name); len(v) > 0 {
				return v[0], nil
			}
			return nil, nil
		}, nil

	case "payload":
		keys := rest[1:]
		return func(tx *transaction.Transaction) (any, error) {
			if tx.Request == nil {
				return nil, nil
			}
			return lookup(tx.Request.Payload, keys), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown request field %q in %q", rest[0], path)
}

func responseResolver(path string, rest []string) (Resolver, error) {
	switch rest[0] {
	case "status":
		return func(tx *transaction.Transaction) (any, error) {
			if tx.Response == nil {
				return nil, nil
			}
			return tx.Response.StatusCode, nil
		}, nil

	case "streaming":
		return func(tx *transaction.Transaction) (any, error) {
			return tx.IsStreaming(), nil
		}, nil

	case "headers":
		if len(rest) != 2 {
			return nil, fmt.Errorf("invalid header path %q", path)
		}
		name := rest[1]
		return func(tx *transaction.Transaction) (any, error) {
			if tx.Response == nil || tx.Response.Header == nil {
				return nil, nil
			}
			if v := tx.Response.Header.Values(name); len(v) > 0 {
				return v[0], nil
			}
			return nil, nil
		}, nil

	case "payload":
		keys := rest[1:]
		return func(tx *transaction.Transaction) (any, error) {
			if tx.Response == nil || tx.IsStreaming() {
				return nil, nil
			}
			payload, err := tx.Response.Payload()
			if err != nil {
				// a body that is not a JSON object has no payload fields
				return nil, nil
			}
			return lookup(payload, keys), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown response field %q in %q", rest[0], path)
}

// lookup walks nested maps and slices. Numeric segments index into slices.
func lookup(v any, keys []string) any {
	cur := v
	for _, key := range keys {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case transaction.Data:
			cur = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}
