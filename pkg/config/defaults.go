package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576  // 1MB
	DefaultMaxBodyBytes    = 10485760 // 10MB
	DefaultCORSMaxAge      = 3600
	DefaultTLSMinVersion   = "1.3"
	DefaultTLSReload       = 5 * time.Minute

	// Backend defaults
	DefaultBackendBaseURL         = "https://api.openai.com/v1"
	DefaultBackendAPIKeyEnv       = "OPENAI_API_KEY"
	DefaultBackendTimeout         = 10 * time.Minute
	DefaultBackendMaxIdleConns    = 100
	DefaultBackendMaxIdlePerHost  = 20
	DefaultBackendIdleConnTimeout = 90 * time.Second

	// Policy defaults
	DefaultPolicyRoot             = "root"
	DefaultPolicyStore            = "file"
	DefaultPolicyFilePath         = "./policies.yaml"
	DefaultPolicySQLitePath       = "data/policies.db"
	DefaultPolicyGitBranch        = "main"
	DefaultPolicyGitPath          = "policies.yaml"
	DefaultPolicyGitLocalPath     = "data/policy-repo"
	DefaultPolicyGitTimeout       = 60 * time.Second
	DefaultPolicyDebounceInterval = 200 * time.Millisecond

	// Audit defaults
	DefaultAuditBackend           = "sqlite"
	DefaultAuditSQLitePath        = "data/audit.db"
	DefaultAuditRetentionDays     = 30
	DefaultAuditRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel      = "info"
	DefaultLoggingFormat     = "json"
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "luthien"
	DefaultMetricsSubsystem  = "proxy"
	DefaultTracingSampler    = "ratio"
	DefaultTracingRatio      = 0.1
	DefaultTracingService    = "luthien"
	DefaultOTLPTimeout       = 10 * time.Second
	DefaultLivenessPath      = "/health"
	DefaultReadinessPath     = "/ready"
)

// DefaultRequestDurationBuckets returns the request histogram buckets in
// seconds. Streamed completions can run for minutes.
func DefaultRequestDurationBuckets() []float64 {
	return []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 120.0}
}

// Default returns a configuration with every field at its default value,
// including the boolean defaults that ApplyDefaults cannot infer from a zero
// value. LoadConfig decodes YAML on top of it.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.Logging.RedactPII = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.OTLP.Insecure = true
	cfg.Proxy.TLS.ReloadInterval = DefaultTLSReload
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxBodyBytes == 0 {
		cfg.Proxy.MaxBodyBytes = DefaultMaxBodyBytes
	}
	applyCORSDefaults(&cfg.Proxy.CORS)
	if cfg.Proxy.TLS.MinVersion == "" {
		cfg.Proxy.TLS.MinVersion = DefaultTLSMinVersion
	}

	// Backend defaults
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendBaseURL
	}
	if cfg.Backend.APIKeyEnv == "" {
		cfg.Backend.APIKeyEnv = DefaultBackendAPIKeyEnv
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Backend.MaxIdleConns == 0 {
		cfg.Backend.MaxIdleConns = DefaultBackendMaxIdleConns
	}
	if cfg.Backend.MaxIdleConnsPerHost == 0 {
		cfg.Backend.MaxIdleConnsPerHost = DefaultBackendMaxIdlePerHost
	}
	if cfg.Backend.IdleConnTimeout == 0 {
		cfg.Backend.IdleConnTimeout = DefaultBackendIdleConnTimeout
	}

	// Policy defaults
	if cfg.Policy.Root == "" {
		cfg.Policy.Root = DefaultPolicyRoot
	}
	if cfg.Policy.Store == "" {
		cfg.Policy.Store = DefaultPolicyStore
	}
	if cfg.Policy.FilePath == "" {
		cfg.Policy.FilePath = DefaultPolicyFilePath
	}
	if cfg.Policy.SQLitePath == "" {
		cfg.Policy.SQLitePath = DefaultPolicySQLitePath
	}
	if cfg.Policy.DebounceInterval == 0 {
		cfg.Policy.DebounceInterval = DefaultPolicyDebounceInterval
	}
	if cfg.Policy.Git.Branch == "" {
		cfg.Policy.Git.Branch = DefaultPolicyGitBranch
	}
	if cfg.Policy.Git.Path == "" {
		cfg.Policy.Git.Path = DefaultPolicyGitPath
	}
	if cfg.Policy.Git.LocalPath == "" {
		cfg.Policy.Git.LocalPath = DefaultPolicyGitLocalPath
	}
	if cfg.Policy.Git.Timeout == 0 {
		cfg.Policy.Git.Timeout = DefaultPolicyGitTimeout
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}
	if cfg.Audit.RetentionSchedule == "" {
		cfg.Audit.RetentionSchedule = DefaultAuditRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = DefaultRequestDurationBuckets()
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Telemetry.Tracing.OTLP.Timeout == 0 {
		cfg.Telemetry.Tracing.OTLP.Timeout = DefaultOTLPTimeout
	}
	if cfg.Telemetry.Health.LivenessPath == "" {
		cfg.Telemetry.Health.LivenessPath = DefaultLivenessPath
	}
	if cfg.Telemetry.Health.ReadinessPath == "" {
		cfg.Telemetry.Health.ReadinessPath = DefaultReadinessPath
	}
}

// applyCORSDefaults fills the CORS lists when CORS is enabled.
func applyCORSDefaults(cors *CORSConfig) {
	if !cors.Enabled {
		return
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}
