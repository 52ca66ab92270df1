package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/syntrixbase/hybridindex/internal/indexconfig"
)

// CleanerConfig configures the sync index cleaner.
type CleanerConfig struct {
	// Enabled starts the periodic cleaner.
	Enabled bool `yaml:"enabled"`

	// Interval between cleaner runs.
	Interval time.Duration `yaml:"interval"`

	// CreatedTimeThreshold is the grace period of unique index entries.
	// Zero keeps unique entries forever.
	CreatedTimeThreshold time.Duration `yaml:"created_time_threshold"`

	// IndexRoot is the node index definitions are stored under.
	IndexRoot string `yaml:"index_root"`

	// IndexesPath is the YAML file of index definitions installed at startup.
	IndexesPath string `yaml:"indexes_path"`
}

// DefaultCleanerConfig returns the default cleaner configuration.
func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{
		Enabled:     true,
		Interval:    5 * time.Second,
		IndexRoot:   indexconfig.DefaultIndexRoot,
		IndexesPath: "indexes.yml",
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *CleanerConfig) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultCleanerConfig().Interval
	}
	if c.IndexRoot == "" {
		c.IndexRoot = indexconfig.DefaultIndexRoot
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *CleanerConfig) ApplyEnvOverrides() {
	if val := os.Getenv("HYBRIDINDEX_CLEANER_ENABLED"); val != "" {
		c.Enabled = val == "true" || val == "1"
	}
	if val := os.Getenv("HYBRIDINDEX_CLEANER_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Interval = d
		}
	}
	if val := os.Getenv("HYBRIDINDEX_CLEANER_CREATED_TIME_THRESHOLD"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.CreatedTimeThreshold = d
		}
	}
	if val := os.Getenv("HYBRIDINDEX_INDEXES_PATH"); val != "" {
		c.IndexesPath = val
	}
}

// ResolvePaths resolves the index definitions file against the config directory.
func (c *CleanerConfig) ResolvePaths(configDir string) {
	if c.IndexesPath != "" && !filepath.IsAbs(c.IndexesPath) {
		c.IndexesPath = filepath.Join(configDir, c.IndexesPath)
	}
}

// Validate validates the configuration
func (c *CleanerConfig) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("cleaner.interval must not be negative")
	}
	if c.CreatedTimeThreshold < 0 {
		return fmt.Errorf("cleaner.created_time_threshold must not be negative")
	}
	if !strings.HasPrefix(c.IndexRoot, "/") {
		return fmt.Errorf("cleaner.index_root must be an absolute path: %q", c.IndexRoot)
	}
	return nil
}
