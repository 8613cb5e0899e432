package config

import "fmt"

// ObservabilityConfig controls APM reporting and log verbosity.
// ServiceName and Environment are filled in by LoadConfig.
type ObservabilityConfig struct {
	Enabled     bool   `koanf:"enabled"`
	LicenseKey  string `koanf:"license_key"`
	LogLevel    string `koanf:"log_level"`
	ServiceName string `koanf:"-"`
	Environment string `koanf:"-"`
}

// DefaultObservabilityConfig returns observability settings with APM off.
func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		Enabled:  false,
		LogLevel: "info",
	}
}

// Validate checks that APM has a license key when enabled.
func (c *ObservabilityConfig) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Enabled && c.LicenseKey == "" {
		return fmt.Errorf("observability enabled but license_key is empty")
	}
	return nil
}
