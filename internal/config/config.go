package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Cleaner CleanerConfig `yaml:"cleaner"`
	Async   AsyncConfig   `yaml:"async"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:   DefaultStoreConfig(),
		Cleaner: DefaultCleanerConfig(),
		Async:   DefaultAsyncConfig(),
		Logging: DefaultLoggingConfig(),
		Metrics: DefaultMetricsConfig(),
	}
}

// LoadConfig loads configuration from files in configDir and environment variables
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults -> ApplyEnvOverrides -> ResolvePaths -> Validate
func LoadConfig(configDir string) (*Config, error) {
	// 1. Start with default values (so YAML can override them, including bool fields)
	cfg := DefaultConfig()

	// 2. Load config.yml (overrides defaults)
	loadFile(filepath.Join(configDir, "config.yml"), cfg)

	// 3. Load config.local.yml (overrides config.yml)
	loadFile(filepath.Join(configDir, "config.local.yml"), cfg)

	// 4. Apply configuration lifecycle
	if err := ApplyServiceConfigs(configDir,
		&cfg.Store,
		&cfg.Cleaner,
		&cfg.Async,
		&cfg.Logging,
		&cfg.Metrics,
	); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	return cfg, nil
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return // File doesn't exist, skip
		}
		log.Printf("Warning: Error reading %s: %v", filename, err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("Warning: Error parsing %s: %v", filename, err)
	}
}

// resolvePath resolves a relative path the way log and data directories are
// resolved: paths starting with ".." are relative to configDir, other
// relative paths to its parent.
func resolvePath(configDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if len(path) >= 2 && path[0:2] == ".." {
		return filepath.Clean(filepath.Join(configDir, path))
	}
	return filepath.Clean(filepath.Join(filepath.Dir(configDir), path))
}
