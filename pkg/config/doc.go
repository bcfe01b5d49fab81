// Package config provides configuration management for Luthien.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention LUTHIEN_SECTION_FIELD.
// For example:
//
//   - LUTHIEN_PROXY_LISTEN_ADDRESS overrides proxy.listen_address
//   - LUTHIEN_BACKEND_API_KEY overrides backend.api_key
//   - LUTHIEN_POLICY_ROOT overrides policy.root
//   - LUTHIEN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer dependency injection with explicit Config instances
// rather than the global singleton.
package config
