// Package tls serves the proxy listener over TLS with certificates that can
// be rotated on disk without a restart.
//
//	reloader := tls.NewReloader(&cfg.Proxy.TLS, logger)
//	if err := reloader.Start(ctx); err != nil {
//	    return err
//	}
//	tlsCfg := tls.NewServerConfig(&cfg.Proxy.TLS, reloader)
//
// The Reloader polls the certificate and key modification times every
// ReloadInterval and swaps in the new pair once it parses and is within its
// validity window. A pair that fails to load is logged and the previous
// certificate stays in service.
package tls
