package config

import "time"

// Config is the root configuration structure for Luthien.
// It contains all configuration sections for the proxy server, the backend
// connection, the policy tree source, credentials, auditing and telemetry.
type Config struct {
	// Proxy contains HTTP proxy server configuration including listen address,
	// timeouts, and request limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Backend describes the OpenAI-compatible API that requests are forwarded to.
	Backend BackendConfig `yaml:"backend"`

	// Policy selects the root policy and the store its configuration is
	// loaded from.
	Policy PolicyConfig `yaml:"policy"`

	// Auth configures the credential lookup used by authentication policies.
	Auth AuthConfig `yaml:"auth"`

	// Audit configures where audit policies record transactions.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the HTTP proxy server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the proxy to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds the whole response, so it must cover the longest
	// streamed completion.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the inbound request body.
	// Default: 10485760 (10MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS serves HTTPS when enabled.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures the listener's certificate.
type TLSConfig struct {
	// Enabled switches the listener to TLS.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the files are checked for rotation.
	// Zero disables reloading.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods for CORS requests.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers for CORS requests.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the maximum age (in seconds) for preflight request cache.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// BackendConfig describes the upstream chat-completions API.
type BackendConfig struct {
	// BaseURL is the API root, without the /chat/completions suffix.
	// Default: "https://api.openai.com/v1"
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential policies attach to backend requests.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names an environment variable read when APIKey is empty.
	// Default: "OPENAI_API_KEY"
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a whole backend call, including streamed bodies.
	// Default: 10m
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns is the size of the shared connection pool.
	// Default: 100
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost limits pooled connections per backend host.
	// Default: 20
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout closes pooled connections idle for longer than this.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// PolicyConfig selects the root policy and its configuration store.
type PolicyConfig struct {
	// Root is the name of the policy applied to every request.
	// Default: "root"
	Root string `yaml:"root"`

	// Store selects where policy configurations are read from.
	// Options: "file", "sqlite", "git"
	// Default: "file"
	Store string `yaml:"store"`

	// FilePath is the YAML policy file used by the "file" store.
	// Default: "./policies.yaml"
	FilePath string `yaml:"file_path"`

	// SQLitePath is the database used by the "sqlite" store.
	// Default: "data/policies.db"
	SQLitePath string `yaml:"sqlite_path"`

	// Git configures the "git" store.
	Git GitPolicyConfig `yaml:"git"`

	// Watch reloads the policy tree when the policy file changes.
	// Only used with the "file" store.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval collapses bursts of file events into one reload.
	// Default: 200ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// ReloadSchedule is a cron expression for periodic reloads (e.g. "*/5 * * * *").
	// Empty disables scheduled reloads.
	ReloadSchedule string `yaml:"reload_schedule"`
}

// GitPolicyConfig configures a policy file kept in a Git repository.
type GitPolicyConfig struct {
	// Repository is the clone URL.
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// Path is the policy file path within the repository.
	// Default: "policies.yaml"
	Path string `yaml:"path"`

	// LocalPath is where the repository is cloned.
	// Default: "data/policy-repo"
	LocalPath string `yaml:"local_path"`

	// Token is an access token for HTTPS clones.
	Token string `yaml:"token"`

	// SSHKeyPath is a private key for SSH clones. It takes precedence over
	// Token.
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase decrypts SSHKeyPath.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`

	// Timeout bounds clone and pull operations.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig configures the credential lookup.
type AuthConfig struct {
	// Keys are statically configured client keys.
	Keys []APIKeyConfig `yaml:"keys"`

	// SQLitePath enables the database-backed key store when set.
	SQLitePath string `yaml:"sqlite_path"`
}

// APIKeyConfig is one statically configured client key.
type APIKeyConfig struct {
	// Key is the secret presented by the client.
	Key string `yaml:"key"`

	// Principal identifies the caller the key belongs to.
	Principal string `yaml:"principal"`

	// Name is a human-readable label.
	Name string `yaml:"name"`

	// Disabled rejects the key without removing it.
	Disabled bool `yaml:"disabled"`
}

// AuditConfig configures the sink used by audit policies.
type AuditConfig struct {
	// Backend selects the sink.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the database used by the "sqlite" backend.
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// RetentionDays deletes audit records older than this. Zero keeps
	// records forever.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// RetentionSchedule is the cron expression for the pruning job.
	// Default: "0 3 * * *"
	RetentionSchedule string `yaml:"retention_schedule"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Health contains health check configuration.
	Health HealthConfig `yaml:"health"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII enables automatic redaction of keys, tokens and emails in logs.
	// Default: true
	RedactPII bool `yaml:"redact_pii"`

	// RedactPatterns contains custom redaction patterns.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "luthien"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "proxy"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 120.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Example: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "luthien"
	ServiceName string `yaml:"service_name"`

	// OTLP contains OTLP exporter specific configuration.
	OTLP OTLPConfig `yaml:"otlp"`
}

// OTLPConfig contains OTLP exporter configuration.
type OTLPConfig struct {
	// Insecure disables TLS for OTLP connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// HealthConfig contains health check endpoint configuration.
type HealthConfig struct {
	// LivenessPath is the path for the liveness probe endpoint.
	// Default: "/health"
	LivenessPath string `yaml:"liveness_path"`

	// ReadinessPath is the path for the readiness probe endpoint.
	// Default: "/ready"
	ReadinessPath string `yaml:"readiness_path"`
}
