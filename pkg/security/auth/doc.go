/*
Package auth resolves client API keys to principals.

A CredentialLookup maps a presented key to the Principal that owns it. The
authenticate policy calls it with the key extracted from the inbound
request and stores the principal in the transaction for later policies.

Two lookups are provided:

  - StaticLookup holds keys from the configuration file.
  - SQLiteLookup reads keys from a SQLite database. Only SHA-256 hashes of
    the keys are stored.

# Basic Usage

	lookup := auth.NewStaticLookup([]config.APIKeyConfig{
		{Key: "lk-test-1234567890abcdef", Principal: "alice", Name: "laptop"},
	})

	principal, err := lookup.Lookup(ctx, "lk-test-1234567890abcdef")
	if errors.Is(err, auth.ErrInvalidKey) {
		// reject
	}

Keys are read from request headers with ExtractKey, which understands an
optional scheme prefix such as "Bearer".
*/
package auth
