package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// current holds the process-wide configuration.
	current atomic.Pointer[Config]

	// initOnce guards Initialize.
	initOnce sync.Once
)

// Initialize loads configuration from path with environment overrides and
// installs it as the process-wide configuration. Only the first call has any
// effect.
func Initialize(path string) error {
	var initErr error
	initOnce.Do(func() {
		cfg, err := LoadConfigWithEnvOverrides(path)
		if err != nil {
			initErr = err
			return
		}
		current.Store(cfg)
	})
	return initErr
}

// GetConfig returns the process-wide configuration, or nil before Initialize.
// Callers must treat the returned value as read-only.
func GetConfig() *Config {
	return current.Load()
}

// SetConfig replaces the process-wide configuration. Intended for tests.
func SetConfig(cfg *Config) {
	current.Store(cfg)
}

// ReloadConfig loads path again and swaps it in only if it is valid. On error
// the existing configuration stays in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	current.Store(cfg)
	return nil
}

// MustGetConfig is GetConfig for code paths that run after a successful
// Initialize. It panics otherwise.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}

// resetForTest clears the singleton.
func resetForTest() {
	current.Store(nil)
	initOnce = sync.Once{}
}
