package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/security/auth"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/transaction"
)

type authenticateParams struct {
	// Status is returned for missing or rejected keys. Default 401.
	Status int `mapstructure:"status"`

	// Sources lists the headers a key may be presented in. Default
	// Authorization (Bearer) then X-API-Key.
	Sources []struct {
		Header string `mapstructure:"header"`
		Scheme string `mapstructure:"scheme"`
	} `mapstructure:"sources"`

	// KeepHeader forwards the client's credential header to the backend.
	KeepHeader bool `mapstructure:"keep_header"`
}

// authenticate resolves the client key to a principal.
type authenticate struct {
	policy.Base
	lookup  auth.CredentialLookup
	sources []auth.KeySource
	status  int
	keep    bool
	logger  *slog.Logger
}

func newAuthenticate(name string, p authenticateParams, deps loader.Dependencies) (policy.Policy, error) {
	if deps.Credentials == nil {
		return nil, fmt.Errorf("no credential lookup configured")
	}

	sources := auth.DefaultKeySources()
	if len(p.Sources) > 0 {
		sources = make([]auth.KeySource, 0, len(p.Sources))
		for _, s := range p.Sources {
			if s.Header == "" {
				return nil, fmt.Errorf("key source without header")
			}
			sources = append(sources, auth.KeySource{Header: s.Header, Scheme: s.Scheme})
		}
	}

	status := p.Status
	if status == 0 {
		status = http.StatusUnauthorized
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &authenticate{
		Base:    policy.NewBase(name, TypeAuthenticate),
		lookup:  deps.Credentials,
		sources: sources,
		status:  status,
		keep:    p.KeepHeader,
		logger:  logger,
	}, nil
}

func (a *authenticate) Apply(ctx context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := requireRequest(a.Name(), tx); err != nil {
		return tx, err
	}

	key, header, ok := auth.ExtractKey(tx.Request.Header, a.sources)
	if !ok {
		return tx, policy.NewError(a.Name(), a.status, "missing API key").WithCode("invalid_api_key")
	}

	principal, err := a.lookup.Lookup(ctx, key)
	switch {
	case errors.Is(err, auth.ErrInvalidKey), errors.Is(err, auth.ErrKeyDisabled):
		a.logger.WarnContext(ctx, "client key rejected",
			"policy", a.Name(),
			"key", logging.RedactAPIKey(key),
			"reason", err.Error(),
		)
		return tx, policy.NewError(a.Name(), a.status, "invalid API key").WithCode("invalid_api_key").WithCause(err)
	case err != nil:
		return tx, fmt.Errorf("credential lookup: %w", err)
	}

	if !a.keep {
		tx.Request.Header.Del(header)
	}
	tx.Data.Set(transaction.KeyPrincipal, principal)
	tx.Data.Set(transaction.KeyPrincipalID, principal.ID)
	return tx, nil
}
