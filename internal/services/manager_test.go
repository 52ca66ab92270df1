package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/hybridindex/internal/async"
	"github.com/syntrixbase/hybridindex/internal/clock"
	"github.com/syntrixbase/hybridindex/internal/config"
	"github.com/syntrixbase/hybridindex/internal/hybrid"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
	"github.com/syntrixbase/hybridindex/internal/tree/persist_store"
	"go.mongodb.org/mongo-driver/mongo"
)

const testIndexes = `
indexes:
  - path: /oak:index/foo
    sync: true
    properties: [foo]
  - path: /oak:index/email
    unique: true
    properties: [email]
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "indexes.yml"), []byte(testIndexes), 0644))

	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(dir, "tree.db")
	cfg.Store.Sync = false
	cfg.Cleaner.Enabled = false
	cfg.Cleaner.IndexesPath = filepath.Join(dir, "indexes.yml")
	cfg.Metrics.Enabled = false
	return cfg
}

func commit(t *testing.T, m *Manager, path, property, value string) error {
	t.Helper()
	b := m.Store().Root().Builder()
	b.ChildPath(path).SetString(property, value)
	_, err := m.Store().Merge(context.Background(), b, m.Hook(), tree.NewCommitInfo("test", "set "+path))
	return err
}

func query(m *Manager, indexPath, property, value string) []string {
	root := m.Store().Root()
	def, err := indexconfig.Read(root, indexPath)
	if err != nil {
		return nil
	}
	pd, _ := def.Property(property)
	return hybrid.NewLookup(tree.GetNode(root, indexPath)).Query(hybrid.Filter{}, pd, property, value)
}

func TestManager_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewVirtual(1000)
	m := NewManager(cfg, Options{Clock: clk})

	ctx := context.Background()
	require.NoError(t, m.Init(ctx))
	assert.Nil(t, m.Scheduler())
	assert.NotNil(t, m.Reporter())

	assert.ElementsMatch(t, []string{"/oak:index/email", "/oak:index/foo"},
		indexconfig.SyncIndexPaths(m.Store(), cfg.Cleaner.IndexRoot)())

	require.NoError(t, commit(t, m, "/content/a", "foo", "x"))
	assert.Equal(t, []string{"/content/a"}, query(m, "/oak:index/foo", "foo", "x"))

	require.NoError(t, commit(t, m, "/content/u1", "email", "a@b.c"))
	err := commit(t, m, "/content/u2", "email", "a@b.c")
	assert.ErrorIs(t, err, hybrid.ErrConstraintViolation)

	require.NoError(t, m.Reporter().Report(ctx, async.Info{Lane: indexconfig.DefaultLane, LastIndexedTo: 2000}))
	changed, err := m.Cleaner().Run(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	// rotated entries stay visible until the next cleanup
	assert.Equal(t, []string{"/content/a"}, query(m, "/oak:index/foo", "foo", "x"))

	require.NoError(t, m.Start(ctx))
	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	m.Shutdown(shutdownCtx)
}

func TestManager_ReopenKeepsIndex(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	m := NewManager(cfg, Options{Clock: clock.NewVirtual(1000)})
	require.NoError(t, m.Init(ctx))
	require.NoError(t, commit(t, m, "/content/a", "foo", "x"))
	m.Shutdown(ctx)

	m = NewManager(cfg, Options{Clock: clock.NewVirtual(2000)})
	require.NoError(t, m.Init(ctx))
	defer m.Shutdown(ctx)
	assert.Equal(t, []string{"/content/a"}, query(m, "/oak:index/foo", "foo", "x"))
}

func TestManager_SchedulerRunsCleaner(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cleaner.Enabled = true
	cfg.Cleaner.Interval = 10 * time.Millisecond

	ctx := context.Background()
	m := NewManager(cfg, Options{Clock: clock.NewVirtual(1000)})
	require.NoError(t, m.Init(ctx))
	require.NotNil(t, m.Scheduler())
	require.NoError(t, commit(t, m, "/content/a", "foo", "x"))
	require.NoError(t, m.Reporter().Report(ctx, async.Info{Lane: indexconfig.DefaultLane, LastIndexedTo: 5000}))

	require.NoError(t, m.Start(ctx))
	defer m.Shutdown(ctx)

	assert.Eventually(t, func() bool {
		state := tree.GetNode(m.Store().Root(), "/oak:index/foo").Child(hybrid.CleanerStateNode)
		v, ok := state.Int64("lastIndexedTo")
		return ok && v == 5000
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_Init_MissingIndexesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cleaner.IndexesPath = filepath.Join(t.TempDir(), "missing.yml")

	m := NewManager(cfg, Options{})
	require.NoError(t, m.Init(context.Background()))
	defer m.Shutdown(context.Background())
	assert.Empty(t, m.Cleaner().GetSyncIndexPaths())
}

func TestManager_Init_RejectsIndexOutsideRoot(t *testing.T) {
	cfg := testConfig(t)
	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("indexes:\n  - path: /other/foo\n    sync: true\n    properties: [foo]\n"), 0644))
	cfg.Cleaner.IndexesPath = bad

	m := NewManager(cfg, Options{})
	err := m.Init(context.Background())
	assert.ErrorContains(t, err, "direct child")
}

func TestManager_Init_StoreError(t *testing.T) {
	orig := openStore
	defer func() { openStore = orig }()
	openStore = func(persist_store.Config, *slog.Logger) (*persist_store.PebbleStore, error) {
		return nil, errors.New("locked")
	}

	m := NewManager(testConfig(t), Options{})
	err := m.Init(context.Background())
	assert.ErrorContains(t, err, "locked")
}

func TestManager_Init_NATSProvider(t *testing.T) {
	orig := startNATSFeed
	defer func() { startNATSFeed = orig }()

	var started *async.NATSProvider
	startNATSFeed = func(_ context.Context, p *async.NATSProvider) error {
		started = p
		return nil
	}

	cfg := testConfig(t)
	cfg.Async.Provider = config.AsyncProviderNATS
	m := NewManager(cfg, Options{})
	require.NoError(t, m.Init(context.Background()))
	defer m.Shutdown(context.Background())

	assert.Same(t, started, m.Provider())
	assert.Nil(t, m.Reporter())
}

func TestManager_Init_NATSError(t *testing.T) {
	orig := startNATSFeed
	defer func() { startNATSFeed = orig }()
	startNATSFeed = func(context.Context, *async.NATSProvider) error {
		return errors.New("no servers available")
	}

	cfg := testConfig(t)
	cfg.Async.Provider = config.AsyncProviderNATS
	m := NewManager(cfg, Options{})
	assert.ErrorContains(t, m.Init(context.Background()), "no servers available")
}

func TestManager_Init_MongoError(t *testing.T) {
	orig := connectMongo
	defer func() { connectMongo = orig }()
	connectMongo = func(context.Context, string) (*mongo.Client, error) {
		return nil, errors.New("dial failed")
	}

	cfg := testConfig(t)
	cfg.Async.Provider = config.AsyncProviderMongo
	m := NewManager(cfg, Options{})
	err := m.Init(context.Background())
	assert.ErrorContains(t, err, "failed to connect to mongo")
}

func TestManager_Init_MemoryProviderWarnsWhenScheduled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := testConfig(t)
	cfg.Cleaner.Enabled = true
	m := NewManager(cfg, Options{Logger: logger})
	require.NoError(t, m.Init(context.Background()))
	defer m.Shutdown(context.Background())

	assert.Contains(t, buf.String(), "Memory lane provider")
	assert.NotNil(t, m.Reporter())
}
