package config

import (
	"fmt"
	"os"

	"github.com/syntrixbase/hybridindex/internal/tree/persist_store"
)

// StoreConfig configures the persistent node store.
type StoreConfig struct {
	// Path is the pebble database directory.
	Path string `yaml:"path"`

	// BlockCacheSize is the pebble block cache size, e.g. "64MiB".
	BlockCacheSize string `yaml:"block_cache_size"`

	// Sync forces an fsync on every commit.
	Sync bool `yaml:"sync"`
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Path:           "data/hybridindex/tree.db",
		BlockCacheSize: "64MiB",
		Sync:           true,
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *StoreConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = DefaultStoreConfig().Path
	}
	if c.BlockCacheSize == "" {
		c.BlockCacheSize = DefaultStoreConfig().BlockCacheSize
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *StoreConfig) ApplyEnvOverrides() {
	if val := os.Getenv("HYBRIDINDEX_STORE_PATH"); val != "" {
		c.Path = val
	}
}

// ResolvePaths resolves relative paths based on config directory
func (c *StoreConfig) ResolvePaths(configDir string) {
	c.Path = resolvePath(configDir, c.Path)
}

// Validate validates the configuration
func (c *StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if _, err := ParseByteSize(c.BlockCacheSize); err != nil {
		return fmt.Errorf("store.block_cache_size: %w", err)
	}
	return nil
}

// ToPebbleConfig converts to the persist_store configuration.
func (c *StoreConfig) ToPebbleConfig() persist_store.Config {
	size, _ := ParseByteSize(c.BlockCacheSize)
	return persist_store.Config{
		Path:           c.Path,
		BlockCacheSize: size,
		Sync:           c.Sync,
	}
}
