package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/proxy/middleware"
	"mercator-hq/luthien/pkg/telemetry/health"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"
	"mercator-hq/luthien/pkg/telemetry/tracing"
)

// ChatCompletionsPath is where the chat completions handler is mounted.
const ChatCompletionsPath = "/v1/chat/completions"

// Options wires the server to the rest of the process. Chat is required.
type Options struct {
	// Chat serves chat completions, normally a *proxy.Orchestrator.
	Chat http.Handler

	// Health backs the liveness and readiness probes.
	Health *health.Checker

	// Metrics is exposed on the metrics path when enabled.
	Metrics *metrics.Collector

	// TLS switches the listener to HTTPS when set.
	TLS *tls.Config

	Logger *slog.Logger
}

// Server is the proxy's HTTP server.
type Server struct {
	proxy     *config.ProxyConfig
	telemetry *config.TelemetryConfig
	opts      Options
	logger    *slog.Logger

	mu         sync.RWMutex
	httpServer *http.Server
	addr       net.Addr
}

// New creates a server. Nothing listens until Start is called.
func New(proxyCfg *config.ProxyConfig, telemetryCfg *config.TelemetryConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	return &Server{
		proxy:     proxyCfg,
		telemetry: telemetryCfg,
		opts:      opts,
		logger:    logger.With("component", "server"),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ChatCompletionsPath, s.opts.Chat)
	mux.Handle(s.telemetry.Health.LivenessPath, s.opts.Health.LivenessHandler())
	mux.Handle(s.telemetry.Health.ReadinessPath, s.opts.Health.ReadinessHandler())
	if s.telemetry.Metrics.Enabled && s.opts.Metrics != nil {
		mux.Handle(s.telemetry.Metrics.Path, s.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.CORSMiddleware(s.proxy.CORS)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.LoggingMiddleware(s.logger)(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)
	return handler
}

// Start listens on the configured address and serves until ctx is canceled,
// then shuts down gracefully. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	ln, err := net.Listen("tcp", s.proxy.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.proxy.ListenAddress, err)
	}
	if s.opts.TLS != nil {
		ln = tls.NewListener(ln, s.opts.TLS)
	}
	srv := &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.proxy.ReadTimeout,
		WriteTimeout:   s.proxy.WriteTimeout,
		IdleTimeout:    s.proxy.IdleTimeout,
		MaxHeaderBytes: s.proxy.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpServer = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("starting proxy server", "address", ln.Addr().String(), "tls", s.opts.TLS != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	}
	return s.Shutdown(context.Background())
}

// Shutdown stops the server, waiting up to the configured shutdown timeout
// for in-flight requests. It is a no-op when the server is not running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.addr = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.proxy.ShutdownTimeout.String())
	ctx, cancel := context.WithTimeout(ctx, s.proxy.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	s.logger.Info("proxy server stopped")
	return nil
}

// Addr returns the bound address while the server is running, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// IsRunning reports whether Start is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpServer != nil
}
