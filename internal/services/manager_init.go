package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/syntrixbase/hybridindex/internal/async"
	"github.com/syntrixbase/hybridindex/internal/config"
	"github.com/syntrixbase/hybridindex/internal/hybrid"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/maintenance"
	"github.com/syntrixbase/hybridindex/internal/tree"
	"github.com/syntrixbase/hybridindex/internal/tree/persist_store"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Factory hooks, replaced in tests.
var (
	openStore = func(cfg persist_store.Config, logger *slog.Logger) (*persist_store.PebbleStore, error) {
		return persist_store.Open(cfg, logger)
	}

	connectMongo = func(ctx context.Context, uri string) (*mongo.Client, error) {
		return mongo.Connect(ctx, options.Client().ApplyURI(uri))
	}

	startNATSFeed = func(ctx context.Context, p *async.NATSProvider) error {
		return p.Start(ctx)
	}
)

// Init opens the store, installs index definitions and builds the cleaner.
// On failure everything opened so far is released.
func (m *Manager) Init(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			m.closeAll(context.Background())
		}
	}()

	store, err := openStore(m.cfg.Store.ToPebbleConfig(), m.opts.Logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	m.store = store
	m.closers = append(m.closers, store)

	m.hook = hybrid.NewEditorHook(m.cfg.Cleaner.IndexRoot, m.opts.Clock, m.opts.Logger)

	if err := m.installDefinitions(ctx); err != nil {
		return err
	}
	if err := m.initProvider(ctx); err != nil {
		return err
	}

	m.cleaner = hybrid.NewCleaner(
		m.store,
		indexconfig.SyncIndexPaths(m.store, m.cfg.Cleaner.IndexRoot),
		m.provider,
		m.opts.Logger,
		hybrid.WithClock(m.opts.Clock),
	)
	if m.cfg.Cleaner.CreatedTimeThreshold > 0 {
		m.cleaner.SetCreatedTimeThreshold(m.cfg.Cleaner.CreatedTimeThreshold)
	}

	if m.cfg.Cleaner.Enabled {
		m.scheduler = maintenance.New(maintenance.Config{Interval: m.cfg.Cleaner.Interval}, m.cleaner, m.opts.Logger)
	}

	if m.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		m.metricsServer = &http.Server{Addr: m.cfg.Metrics.Addr, Handler: mux}
	}
	return nil
}

// installDefinitions merges the definitions file into the index root. A
// missing file leaves the stored definitions untouched.
func (m *Manager) installDefinitions(ctx context.Context) error {
	path := m.cfg.Cleaner.IndexesPath
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		m.logger.Info("No index definitions file", "path", path)
		return nil
	}

	defs, err := indexconfig.LoadFromFile(path)
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}

	builder := m.store.Root().Builder()
	for _, d := range defs {
		if tree.ParentPath(d.Path) != m.cfg.Cleaner.IndexRoot {
			return fmt.Errorf("index %q must be a direct child of %q", d.Path, m.cfg.Cleaner.IndexRoot)
		}
		indexconfig.Install(builder, d)
	}
	info := tree.NewCommitInfo("hybridindex", fmt.Sprintf("install %d index definitions", len(defs)))
	if _, err := m.store.Merge(ctx, builder, m.hook, info); err != nil {
		return fmt.Errorf("failed to install index definitions: %w", err)
	}
	m.logger.Info("Installed index definitions", "count", len(defs), "path", path)
	return nil
}

func (m *Manager) initProvider(ctx context.Context) error {
	switch m.cfg.Async.Provider {
	case config.AsyncProviderNATS:
		feed := async.NewNATSProvider(m.cfg.Async.NATS.URL, m.cfg.Async.NATS.SubjectPrefix, m.opts.Logger)
		if err := startNATSFeed(ctx, feed); err != nil {
			return err
		}
		m.provider = feed
		m.closers = append(m.closers, feed)

	case config.AsyncProviderMongo:
		client, err := connectMongo(ctx, m.cfg.Async.Mongo.URI)
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}
		m.mongoClient = client
		p := async.NewMongoProvider(client.Database(m.cfg.Async.Mongo.DatabaseName), m.cfg.Async.Mongo.Collection)
		m.provider = p
		m.reporter = p

	default:
		p := async.NewMemoryProvider()
		m.provider = p
		m.reporter = p
		if m.cfg.Cleaner.Enabled {
			m.logger.Warn("Memory lane provider only sees progress reported in-process; the cleaner stays idle until Reporter() is fed")
		}
	}
	m.logger.Info("Async lane provider ready", "provider", m.cfg.Async.Provider)
	return nil
}
