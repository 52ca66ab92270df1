package config

import (
	"fmt"
	"os"
)

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
		Addr:    ":9464",
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *MetricsConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultMetricsConfig().Addr
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *MetricsConfig) ApplyEnvOverrides() {
	if val := os.Getenv("HYBRIDINDEX_METRICS_ADDR"); val != "" {
		c.Addr = val
	}
}

// ResolvePaths is a no-op for metrics config
func (c *MetricsConfig) ResolvePaths(configDir string) {}

// Validate validates the configuration
func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}
