// Package services wires the store, the commit hook, the async lane
// provider and the cleaner into one process lifecycle.
package services

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/syntrixbase/hybridindex/internal/async"
	"github.com/syntrixbase/hybridindex/internal/clock"
	"github.com/syntrixbase/hybridindex/internal/config"
	"github.com/syntrixbase/hybridindex/internal/hybrid"
	"github.com/syntrixbase/hybridindex/internal/maintenance"
	"github.com/syntrixbase/hybridindex/internal/tree"
	"github.com/syntrixbase/hybridindex/internal/tree/persist_store"
	"go.mongodb.org/mongo-driver/mongo"
)

// Options tune a Manager beyond the configuration file.
type Options struct {
	// Clock overrides the wall clock used for createdAt stamps and run times.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// closer releases a resource at shutdown.
type closer interface {
	Close() error
}

// Manager owns all long-lived components of the process.
type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	store       *persist_store.PebbleStore
	hook        *hybrid.EditorHook
	provider    async.Provider
	reporter    async.Reporter
	cleaner     *hybrid.Cleaner
	scheduler   *maintenance.Scheduler
	mongoClient *mongo.Client

	metricsServer *http.Server
	closers       []closer
	wg            sync.WaitGroup
}

// NewManager creates a manager for cfg. Nothing is opened until Init.
func NewManager(cfg *config.Config, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger.With("component", "manager"),
	}
}

// Store returns the node store. Commits must go through Merge with Hook.
func (m *Manager) Store() tree.NodeStore {
	return m.store
}

// Hook returns the commit hook that maintains synchronous index entries.
func (m *Manager) Hook() tree.CommitHook {
	return m.hook
}

// Provider returns the async lane progress source used by the cleaner.
func (m *Manager) Provider() async.Provider {
	return m.provider
}

// Reporter returns the sink for lane progress, nil when the configured
// provider only consumes progress published elsewhere.
func (m *Manager) Reporter() async.Reporter {
	return m.reporter
}

// Cleaner returns the sync index cleaner.
func (m *Manager) Cleaner() *hybrid.Cleaner {
	return m.cleaner
}

// Scheduler returns the periodic cleaner driver, nil when disabled.
func (m *Manager) Scheduler() *maintenance.Scheduler {
	return m.scheduler
}
