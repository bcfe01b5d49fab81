package tls

import (
	"crypto/tls"

	"mercator-hq/luthien/pkg/config"
)

// NewServerConfig returns the listener configuration serving the reloader's
// current certificate.
func NewServerConfig(cfg *config.TLSConfig, r *Reloader) *tls.Config {
	// #nosec G402 - MinVersion is validated to 1.2 or 1.3
	return &tls.Config{
		MinVersion:     parseMinVersion(cfg.MinVersion),
		GetCertificate: r.GetCertificate,
		NextProtos:     []string{"http/1.1"},
	}
}

func parseMinVersion(v string) uint16 {
	if v == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}
