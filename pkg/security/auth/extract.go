package auth

import (
	"net/http"
	"strings"
)

// KeySource names a header a key may be presented in.
type KeySource struct {
	// Header is the header name.
	Header string

	// Scheme is a required prefix such as "Bearer". Empty means the whole
	// header value is the key.
	Scheme string
}

// DefaultKeySources accepts "Authorization: Bearer <key>" and "X-API-Key".
func DefaultKeySources() []KeySource {
	return []KeySource{
		{Header: "Authorization", Scheme: "Bearer"},
		{Header: "X-API-Key"},
	}
}

// ExtractKey returns the first key found in h and the header it came from.
func ExtractKey(h http.Header, sources []KeySource) (key, header string, ok bool) {
	for _, src := range sources {
		value := strings.TrimSpace(h.Get(src.Header))
		if value == "" {
			continue
		}
		if src.Scheme == "" {
			return value, src.Header, true
		}
		scheme, rest, found := strings.Cut(value, " ")
		if found && strings.EqualFold(scheme, src.Scheme) {
			if rest = strings.TrimSpace(rest); rest != "" {
				return rest, src.Header, true
			}
		}
	}
	return "", "", false
}
