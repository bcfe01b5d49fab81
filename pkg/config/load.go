package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (LUTHIEN_SECTION_FIELD).
const EnvPrefix = "LUTHIEN_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Values absent from the file keep their defaults. The result is validated
// but not modified by environment variables; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention LUTHIEN_SECTION_FIELD (e.g., LUTHIEN_PROXY_LISTEN_ADDRESS) and
// always take precedence over the file.
//
// The loading sequence is:
// 1. Start from defaults
// 2. Decode the YAML file on top
// 3. Apply environment variable overrides
// 4. Validate final configuration
//
// An empty path skips the file and uses defaults plus overrides.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	envString("PROXY_LISTEN_ADDRESS", &cfg.Proxy.ListenAddress)
	envDuration("PROXY_READ_TIMEOUT", &cfg.Proxy.ReadTimeout)
	envDuration("PROXY_WRITE_TIMEOUT", &cfg.Proxy.WriteTimeout)
	envDuration("PROXY_IDLE_TIMEOUT", &cfg.Proxy.IdleTimeout)
	envDuration("PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)
	envInt("PROXY_MAX_HEADER_BYTES", &cfg.Proxy.MaxHeaderBytes)
	if val := os.Getenv(EnvPrefix + "PROXY_MAX_BODY_BYTES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Proxy.MaxBodyBytes = i
		}
	}

	envBool("PROXY_TLS_ENABLED", &cfg.Proxy.TLS.Enabled)
	envString("PROXY_TLS_CERT_FILE", &cfg.Proxy.TLS.CertFile)
	envString("PROXY_TLS_KEY_FILE", &cfg.Proxy.TLS.KeyFile)

	// Backend overrides
	envString("BACKEND_BASE_URL", &cfg.Backend.BaseURL)
	envString("BACKEND_API_KEY", &cfg.Backend.APIKey)
	envString("BACKEND_API_KEY_ENV", &cfg.Backend.APIKeyEnv)
	envDuration("BACKEND_TIMEOUT", &cfg.Backend.Timeout)

	// Policy overrides
	envString("POLICY_ROOT", &cfg.Policy.Root)
	envString("POLICY_STORE", &cfg.Policy.Store)
	envString("POLICY_FILE_PATH", &cfg.Policy.FilePath)
	envString("POLICY_SQLITE_PATH", &cfg.Policy.SQLitePath)
	envBool("POLICY_WATCH", &cfg.Policy.Watch)
	envString("POLICY_RELOAD_SCHEDULE", &cfg.Policy.ReloadSchedule)
	envString("POLICY_GIT_REPOSITORY", &cfg.Policy.Git.Repository)
	envString("POLICY_GIT_BRANCH", &cfg.Policy.Git.Branch)
	envString("POLICY_GIT_PATH", &cfg.Policy.Git.Path)
	envString("POLICY_GIT_TOKEN", &cfg.Policy.Git.Token)
	envString("POLICY_GIT_SSH_KEY_PATH", &cfg.Policy.Git.SSHKeyPath)

	// Auth overrides
	envString("AUTH_SQLITE_PATH", &cfg.Auth.SQLitePath)

	// Audit overrides
	envString("AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)
	envInt("AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// ResolveAPIKey returns the backend key, falling back to the APIKeyEnv variable.
func (b *BackendConfig) ResolveAPIKey() string {
	if b.APIKey != "" {
		return b.APIKey
	}
	if b.APIKeyEnv != "" {
		return os.Getenv(b.APIKeyEnv)
	}
	return ""
}
