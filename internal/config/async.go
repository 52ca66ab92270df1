package config

import (
	"fmt"
	"os"

	"github.com/syntrixbase/hybridindex/internal/async"
)

// Async provider kinds.
const (
	AsyncProviderMemory = "memory"
	AsyncProviderNATS   = "nats"
	AsyncProviderMongo  = "mongo"
)

// AsyncConfig selects where async lane progress is read from.
type AsyncConfig struct {
	Provider string           `yaml:"provider"` // memory, nats, mongo
	NATS     AsyncNATSConfig  `yaml:"nats"`
	Mongo    AsyncMongoConfig `yaml:"mongo"`
}

// AsyncNATSConfig configures the NATS lane progress feed.
type AsyncNATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AsyncMongoConfig configures the MongoDB lane progress collection.
type AsyncMongoConfig struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name"`
	Collection   string `yaml:"collection"`
}

// DefaultAsyncConfig returns the default async configuration.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		Provider: AsyncProviderMemory,
		NATS: AsyncNATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: async.DefaultSubjectPrefix,
		},
		Mongo: AsyncMongoConfig{
			URI:          "mongodb://localhost:27017",
			DatabaseName: "hybridindex",
			Collection:   async.DefaultLaneCollection,
		},
	}
}

// ApplyDefaults fills in missing values with defaults
func (c *AsyncConfig) ApplyDefaults() {
	defaults := DefaultAsyncConfig()
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.NATS.URL == "" {
		c.NATS.URL = defaults.NATS.URL
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = defaults.NATS.SubjectPrefix
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = defaults.Mongo.URI
	}
	if c.Mongo.DatabaseName == "" {
		c.Mongo.DatabaseName = defaults.Mongo.DatabaseName
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = defaults.Mongo.Collection
	}
}

// ApplyEnvOverrides applies environment variable overrides
func (c *AsyncConfig) ApplyEnvOverrides() {
	if val := os.Getenv("HYBRIDINDEX_ASYNC_PROVIDER"); val != "" {
		c.Provider = val
	}
	if val := os.Getenv("HYBRIDINDEX_NATS_URL"); val != "" {
		c.NATS.URL = val
	}
	if val := os.Getenv("HYBRIDINDEX_MONGO_URI"); val != "" {
		c.Mongo.URI = val
	}
	if val := os.Getenv("HYBRIDINDEX_MONGO_DATABASE"); val != "" {
		c.Mongo.DatabaseName = val
	}
}

// ResolvePaths is a no-op for async config
func (c *AsyncConfig) ResolvePaths(configDir string) {}

// Validate validates the configuration
func (c *AsyncConfig) Validate() error {
	switch c.Provider {
	case AsyncProviderMemory:
	case AsyncProviderNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("async.nats.url is required for the nats provider")
		}
	case AsyncProviderMongo:
		if c.Mongo.URI == "" || c.Mongo.DatabaseName == "" {
			return fmt.Errorf("async.mongo.uri and async.mongo.database_name are required for the mongo provider")
		}
	default:
		return fmt.Errorf("invalid async provider: %s (must be memory, nats, or mongo)", c.Provider)
	}
	return nil
}
