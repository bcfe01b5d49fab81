/*
Package security groups Luthien's transport and client authentication code.

# Client Keys

Subpackage auth resolves the API key a client presents to a principal. Keys
come from the configuration file, from a SQLite key store managed with
"luthien keys", or from both through a Chain:

	lookup := auth.Chain{
		auth.NewStaticLookup(cfg.Auth.Keys),
		sqliteLookup,
	}
	principal, err := lookup.Lookup(ctx, key)

Only SHA-256 hashes of stored keys are persisted.

# TLS

Subpackage tls serves the listener over HTTPS and reloads the certificate
pair when it changes on disk:

	reloader := tls.NewReloader(&cfg.Proxy.TLS, logger)
	if err := reloader.Start(ctx); err != nil {
		log.Fatal(err)
	}
	srv := server.New(&cfg.Proxy, &cfg.Telemetry, server.Options{
		TLS: tls.NewServerConfig(&cfg.Proxy.TLS, reloader),
	})
*/
package security
