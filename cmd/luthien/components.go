package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/luthien/pkg/audit"
	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/builtin"
	"mercator-hq/luthien/pkg/policy/loader"
	"mercator-hq/luthien/pkg/policy/store"
	"mercator-hq/luthien/pkg/security/auth"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"
	"mercator-hq/luthien/pkg/telemetry/tracing"

	openai "github.com/sashabaranov/go-openai"
)

// components holds everything built from the configuration that outlives a
// single policy tree.
type components struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer

	store       store.Store
	credentials auth.CredentialLookup
	audit       audit.Sink
	httpClient  *http.Client

	// pingers back readiness checks, keyed by check name.
	pingers map[string]func(context.Context) error

	closers []io.Closer
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Telemetry.Logging, w)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// buildComponents opens the stores and clients named by cfg. On error
// everything opened so far is closed.
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (c *components, err error) {
	c = &components{
		cfg:     cfg,
		logger:  logger,
		pingers: make(map[string]func(context.Context) error),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	c.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	if c.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, Version); err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	if c.store, err = c.openPolicyStore(ctx); err != nil {
		return nil, err
	}
	if c.credentials, err = c.openCredentials(); err != nil {
		return nil, err
	}
	if c.audit, err = c.openAudit(); err != nil {
		return nil, err
	}
	c.httpClient = newBackendClient(&cfg.Backend)
	return c, nil
}

func (c *components) openPolicyStore(ctx context.Context) (store.Store, error) {
	pc := c.cfg.Policy
	switch pc.Store {
	case "sqlite":
		if err := ensureDir(pc.SQLitePath); err != nil {
			return nil, err
		}
		s, err := store.NewSQLiteStore(pc.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open policy store: %w", err)
		}
		c.closers = append(c.closers, s)
		c.pingers["policy_store"] = s.Ping
		return s, nil
	case "git":
		s, err := store.NewGitStore(ctx, pc.Git)
		if err != nil {
			return nil, fmt.Errorf("failed to open policy repository: %w", err)
		}
		c.logger.Info("policy repository ready", "repository", pc.Git.Repository, "head", s.Head())
		return s, nil
	default:
		s, err := store.NewFileStore(pc.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open policy file: %w", err)
		}
		return s, nil
	}
}

func (c *components) openCredentials() (auth.CredentialLookup, error) {
	chain := auth.Chain{auth.NewStaticLookup(c.cfg.Auth.Keys)}
	if path := c.cfg.Auth.SQLitePath; path != "" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		l, err := auth.NewSQLiteLookup(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		c.closers = append(c.closers, l)
		c.pingers["credential_store"] = l.Ping
		chain = append(chain, l)
	}
	return chain, nil
}

func (c *components) openAudit() (audit.Sink, error) {
	if c.cfg.Audit.Backend == "memory" {
		return audit.NewMemorySink(), nil
	}
	if err := ensureDir(c.cfg.Audit.SQLitePath); err != nil {
		return nil, err
	}
	s, err := audit.NewSQLiteSink(c.cfg.Audit.SQLitePath, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit sink: %w", err)
	}
	c.closers = append(c.closers, s)
	c.pingers["audit_sink"] = s.Ping
	return s, nil
}

// newBackendClient returns the HTTP client shared by every backend call.
func newBackendClient(cfg *config.BackendConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport, Timeout: cfg.Timeout}
}

// dependencies is the bundle handed to every policy constructor.
func (c *components) dependencies() loader.Dependencies {
	apiKey := c.cfg.Backend.ResolveAPIKey()
	oc := openai.DefaultConfig(apiKey)
	oc.BaseURL = c.cfg.Backend.BaseURL
	oc.HTTPClient = c.httpClient

	return loader.Dependencies{
		HTTPClient: c.httpClient,
		OpenAI:     openai.NewClientWithConfig(oc),
		Settings: loader.Settings{
			BackendURL:    c.cfg.Backend.BaseURL,
			BackendAPIKey: apiKey,
		},
		Credentials: c.credentials,
		Audit:       c.audit,
		Store:       c.store,
		Logger:      c.logger,
		Instrumentation: policy.Instrumentation{
			Logger:  c.logger,
			Metrics: c.metrics,
			Tracer:  c.tracer,
		},
	}
}

// loader returns a loader over the configured store with every built-in
// policy type registered.
func (c *components) loader() *loader.Loader {
	return loader.New(c.store, builtin.NewTypeTable(), c.dependencies())
}

// Close releases stores and flushes the tracer.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i].Close())
	}
	if c.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, c.tracer.Shutdown(ctx))
	}
	c.closers = nil
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}
