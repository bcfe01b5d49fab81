package builtin

import (
	"context"
	"fmt"
	"net/http"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/transaction"
)

type noopParams struct{}

func newNoop(name string, _ noopParams, _ loader.Dependencies) (policy.Policy, error) {
	return policy.Noop(name), nil
}

// requireRequest fails with a 400 when tx has no request.
func requireRequest(name string, tx *transaction.Transaction) error {
	if tx.Request == nil {
		return policy.NewError(name, http.StatusBadRequest, "request is required").WithCode("invalid_request")
	}
	if tx.Request.Header == nil {
		tx.Request.Header = make(http.Header)
	}
	return nil
}

type addHeaderParams struct {
	Name      string `mapstructure:"name"`
	Value     string `mapstructure:"value"`
	Overwrite *bool  `mapstructure:"overwrite"`
}

func (p *addHeaderParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// addHeader sets a header on the outgoing request.
type addHeader struct {
	policy.Base
	params addHeaderParams
}

func newAddHeader(name string, p addHeaderParams, _ loader.Dependencies) (policy.Policy, error) {
	return &addHeader{Base: policy.NewBase(name, TypeAddHeader), params: p}, nil
}

func (a *addHeader) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := requireRequest(a.Name(), tx); err != nil {
		return tx, err
	}
	overwrite := a.params.Overwrite == nil || *a.params.Overwrite
	if overwrite {
		tx.Request.Header.Set(a.params.Name, a.params.Value)
	} else if tx.Request.Header.Get(a.params.Name) == "" {
		tx.Request.Header.Set(a.params.Name, a.params.Value)
	}
	return tx, nil
}

type removeHeaderParams struct {
	Names []string `mapstructure:"names"`
}

func (p *removeHeaderParams) Validate() error {
	if len(p.Names) == 0 {
		return fmt.Errorf("names is required")
	}
	return nil
}

// removeHeader deletes headers from the outgoing request.
type removeHeader struct {
	policy.Base
	names []string
}

func newRemoveHeader(name string, p removeHeaderParams, _ loader.Dependencies) (policy.Policy, error) {
	return &removeHeader{Base: policy.NewBase(name, TypeRemoveHeader), names: p.Names}, nil
}

func (r *removeHeader) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if tx.Request == nil || tx.Request.Header == nil {
		return tx, nil
	}
	for _, n := range r.names {
		tx.Request.Header.Del(n)
	}
	return tx, nil
}

type addBackendKeyParams struct {
	Header string `mapstructure:"header"`
	Scheme string `mapstructure:"scheme"`
	Key    string `mapstructure:"key"`
}

// addBackendKey replaces the client's credentials with the backend key.
type addBackendKey struct {
	policy.Base
	header string
	value  string
}

func newAddBackendKey(name string, p addBackendKeyParams, deps loader.Dependencies) (policy.Policy, error) {
	key := p.Key
	if key == "" {
		key = deps.Settings.BackendAPIKey
	}
	if key == "" {
		return nil, fmt.Errorf("no backend API key configured")
	}

	header := p.Header
	if header == "" {
		header = "Authorization"
	}
	value := key
	switch {
	case p.Scheme != "":
		value = p.Scheme + " " + key
	case header == "Authorization":
		value = "Bearer " + key
	}
	return &addBackendKey{Base: policy.NewBase(name, TypeAddBackendKey), header: header, value: value}, nil
}

func (a *addBackendKey) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := requireRequest(a.Name(), tx); err != nil {
		return tx, err
	}
	tx.Request.Header.Set(a.header, a.value)
	return tx, nil
}

type setModelParams struct {
	Model string `mapstructure:"model"`

	// OnlyIfMissing keeps a model the client chose.
	OnlyIfMissing bool `mapstructure:"only_if_missing"`
}

func (p *setModelParams) Validate() error {
	if p.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// setModel rewrites the requested model.
type setModel struct {
	policy.Base
	params setModelParams
}

func newSetModel(name string, p setModelParams, _ loader.Dependencies) (policy.Policy, error) {
	return &setModel{Base: policy.NewBase(name, TypeSetModel), params: p}, nil
}

func (s *setModel) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	if err := requireRequest(s.Name(), tx); err != nil {
		return tx, err
	}
	if tx.Request.Payload == nil {
		tx.Request.Payload = make(map[string]any)
	}
	if s.params.OnlyIfMissing && tx.Request.Model() != "" {
		return tx, nil
	}
	tx.Request.Payload["model"] = s.params.Model
	return tx, nil
}

type setDataParams struct {
	Key   string `mapstructure:"key"`
	Value any    `mapstructure:"value"`
}

func (p *setDataParams) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("key is required")
	}
	return nil
}

// setData stores a copy of a constant in the transaction's data map.
type setData struct {
	policy.Base
	params setDataParams
}

func newSetData(name string, p setDataParams, _ loader.Dependencies) (policy.Policy, error) {
	return &setData{Base: policy.NewBase(name, TypeSetData), params: p}, nil
}

func (s *setData) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	tx.Data.Set(s.params.Key, transaction.CloneValue(s.params.Value))
	return tx, nil
}

type blockParams struct {
	Status  int    `mapstructure:"status"`
	Message string `mapstructure:"message"`
	Code    string `mapstructure:"code"`
}

// block rejects every transaction it sees. It is normally placed behind a
// conditional.
type block struct {
	policy.Base
	params blockParams
}

func newBlock(name string, p blockParams, _ loader.Dependencies) (policy.Policy, error) {
	if p.Status == 0 {
		p.Status = http.StatusForbidden
	}
	if p.Message == "" {
		p.Message = "request blocked by policy"
	}
	if p.Code == "" {
		p.Code = "policy_violation"
	}
	return &block{Base: policy.NewBase(name, TypeBlock), params: p}, nil
}

func (b *block) Apply(_ context.Context, tx *transaction.Transaction) (*transaction.Transaction, error) {
	return tx, policy.NewError(b.Name(), b.params.Status, b.params.Message).WithCode(b.params.Code)
}
