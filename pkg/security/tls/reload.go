package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/telemetry/logging"
)

// Reloader keeps the serving certificate in sync with files on disk.
type Reloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewReloader returns a reloader for cfg. Nothing is read until Start.
func NewReloader(cfg *config.TLSConfig, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Reloader{
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
		interval: cfg.ReloadInterval,
		logger:   logger.With("component", "tls"),
	}
}

// Start loads the certificate and, when an interval is set, polls for
// changes until ctx is done.
func (r *Reloader) Start(ctx context.Context) error {
	if err := r.Reload(); err != nil {
		return err
	}
	if r.interval > 0 {
		go r.loop(ctx)
	}
	return nil
}

func (r *Reloader) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("failed to reload certificate",
					"error", err,
					"cert_file", r.certFile,
				)
			}
		}
	}
}

// changed reports whether either file is newer than the loaded pair.
func (r *Reloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

// Reload reads the pair from disk and swaps it in if it is valid.
func (r *Reloader) Reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("stat certificate: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("stat key: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	now := time.Now()
	leaf, err := ValidateCertificate(&cert, now)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()

	attrs := []any{
		"subject", leaf.Subject.CommonName,
		"expires_at", leaf.NotAfter.Format(time.RFC3339),
	}
	if expiresSoon(leaf, now) {
		r.logger.Warn("certificate expiring soon", attrs...)
	} else {
		r.logger.Info("certificate loaded", attrs...)
	}
	return nil
}

// GetCertificate serves the current certificate. It has the signature of
// tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, errors.New("no certificate loaded")
	}
	return r.cert, nil
}
