// Package logging builds the process logger.
//
// Loggers are plain *slog.Logger values. New wraps the JSON or text handler
// in a handler that redacts credentials from attribute values and copies
// request-scoped fields (request_id, principal) from the context into every
// record logged with a *Context method.
//
//	logger, err := logging.New(cfg.Telemetry.Logging, os.Stdout)
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "policy applied", "policy", "auth")
//
// Redaction is on by default and covers OpenAI-style keys, bearer tokens,
// email addresses, password assignments and any configured patterns. Values
// whose key looks sensitive (api_key, authorization, token) are masked
// entirely.
package logging
