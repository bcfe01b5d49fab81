package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateBackend(&cfg.Backend)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "proxy.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "proxy.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_header_bytes", Message: "max header bytes must be non-negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "proxy.max_body_bytes", Message: "max body bytes must be non-negative"})
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "proxy.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "proxy.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
	}
	if v := cfg.TLS.MinVersion; v != "" && v != "1.2" && v != "1.3" {
		errs = append(errs, FieldError{Field: "proxy.tls.min_version", Message: "min version must be 1.2 or 1.3"})
	}
	if cfg.TLS.ReloadInterval < 0 {
		errs = append(errs, FieldError{Field: "proxy.tls.reload_interval", Message: "reload interval must be non-negative"})
	}

	return errs
}

func validateBackend(cfg *BackendConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{Field: "backend.base_url", Message: "base URL is required"})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, FieldError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("invalid base URL %q: must be an absolute http(s) URL", cfg.BaseURL),
		})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "backend.timeout", Message: "timeout must be positive"})
	}
	if cfg.MaxIdleConns < 0 {
		errs = append(errs, FieldError{Field: "backend.max_idle_conns", Message: "max idle conns must be non-negative"})
	}

	return errs
}

func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Root == "" {
		errs = append(errs, FieldError{Field: "policy.root", Message: "root policy name is required"})
	}

	switch cfg.Store {
	case "file":
		if cfg.FilePath == "" {
			errs = append(errs, FieldError{Field: "policy.file_path", Message: "file path is required for the file store"})
		}
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{Field: "policy.sqlite_path", Message: "sqlite path is required for the sqlite store"})
		}
		if cfg.Watch {
			errs = append(errs, FieldError{Field: "policy.watch", Message: "watch is only supported with the file store"})
		}
	case "git":
		if cfg.Git.Repository == "" {
			errs = append(errs, FieldError{Field: "policy.git.repository", Message: "repository is required for the git store"})
		}
		if cfg.Watch {
			errs = append(errs, FieldError{Field: "policy.watch", Message: "watch is only supported with the file store"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "policy.store",
			Message: fmt.Sprintf("invalid store %q: must be 'file', 'sqlite', or 'git'", cfg.Store),
		})
	}

	if cfg.ReloadSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ReloadSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "policy.reload_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateAuth(cfg *AuthConfig) []FieldError {
	var errs []FieldError

	seen := make(map[string]bool)
	for i, k := range cfg.Keys {
		field := fmt.Sprintf("auth.keys[%d]", i)
		if k.Key == "" {
			errs = append(errs, FieldError{Field: field + ".key", Message: "key is required"})
			continue
		}
		if k.Principal == "" {
			errs = append(errs, FieldError{Field: field + ".principal", Message: "principal is required"})
		}
		if seen[k.Key] {
			errs = append(errs, FieldError{Field: field + ".key", Message: "duplicate key"})
		}
		seen[k.Key] = true
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLitePath == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite_path", Message: "sqlite path is required for the sqlite backend"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "audit.retention_days", Message: "retention days must be non-negative"})
	}
	if cfg.RetentionSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "audit.retention_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	validSamplers := map[string]bool{"always": true, "never": true, "ratio": true}
	if !validSamplers[cfg.Tracing.Sampler] {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	if !strings.HasPrefix(cfg.Health.LivenessPath, "/") {
		errs = append(errs, FieldError{Field: "telemetry.health.liveness_path", Message: "liveness path must start with /"})
	}
	if !strings.HasPrefix(cfg.Health.ReadinessPath, "/") {
		errs = append(errs, FieldError{Field: "telemetry.health.readiness_path", Message: "readiness path must start with /"})
	}

	return errs
}
