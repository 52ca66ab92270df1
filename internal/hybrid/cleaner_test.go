package hybrid

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/hybridindex/internal/async"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
	"github.com/syntrixbase/hybridindex/internal/tree/persist_store"
)

func TestCleaner_Rotation(t *testing.T) {
	f := newFixture(t, nil, fooIndex())

	require.NoError(t, f.set("/a", "foo", "bar"))
	assert.Equal(t, []string{"/a"}, f.query("/oak:index/foo", "foo", "bar"))

	assert.True(t, f.run(1000))
	assert.Equal(t, []string{"/a"}, f.query("/oak:index/foo", "foo", "bar"))

	require.NoError(t, f.set("/b", "foo", "bar"))
	assert.Equal(t, []string{"/a", "/b"}, f.query("/oak:index/foo", "foo", "bar"))

	assert.True(t, f.run(2000))
	assert.Equal(t, []string{"/b"}, f.query("/oak:index/foo", "foo", "bar"))

	assert.True(t, f.run(3000))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "bar"))

	stats := f.cleaner.LastStats()
	assert.Equal(t, 1, stats.IndexesCleaned)
	assert.Equal(t, 1, stats.Rotations)
	assert.Equal(t, 1, stats.RemovedEntries)

	state := tree.GetNode(f.store.Root(), "/oak:index/foo/"+CleanerStateNode)
	lastIndexedTo, _ := state.Int64(propLastIndexedTo)
	assert.Equal(t, int64(3000), lastIndexedTo)
	assert.Equal(t, indexconfig.DefaultLane, state.String(propLane))
}

func TestCleaner_NoopWhenWatermarkUnchanged(t *testing.T) {
	f := newFixture(t, nil, fooIndex())
	require.NoError(t, f.set("/a", "foo", "bar"))

	assert.True(t, f.run(1000))
	root := f.store.Root()

	assert.False(t, f.run(1000))
	assert.Same(t, root, f.store.Root(), "no commit for an idle lane")
	assert.Equal(t, []string{"/a"}, f.query("/oak:index/foo", "foo", "bar"))

	// regressions are ignored as well
	assert.False(t, f.run(900))
	assert.Same(t, root, f.store.Root())
}

func TestCleaner_ConvergesToEmpty(t *testing.T) {
	f := newFixture(t, nil, fooIndex())
	require.NoError(t, f.set("/a", "foo", "bar"))

	for i, w := range []int64{1000, 2000, 3000, 4000} {
		assert.True(t, f.run(w), "run %d", i)
	}
	bucket := bucketState(tree.GetNode(f.store.Root(), "/oak:index/foo"), "foo")
	assert.Equal(t, 0, bucket.Child(Current.String()).ChildCount())
	assert.Equal(t, 0, bucket.Child(Previous.String()).ChildCount())
	assert.Equal(t, []string{"/oak:index/foo"}, f.cleaner.GetSyncIndexPaths())
}

func TestCleaner_UniquePurge(t *testing.T) {
	f := newFixture(t, nil, uniqueIndex())
	f.cleaner.SetCreatedTimeThreshold(100 * time.Millisecond)

	f.clock.WaitUntil(1000)
	require.NoError(t, f.set("/a", "foo", "bar"))
	f.clock.WaitUntil(1150)
	require.NoError(t, f.set("/b", "foo", "bar2"))

	assert.True(t, f.run(1200))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "bar"))
	assert.Equal(t, []string{"/b"}, f.query("/oak:index/foo", "foo", "bar2"))
	assert.Equal(t, 1, f.cleaner.LastStats().PurgedEntries)

	err := f.set("/c", "foo", "bar2")
	require.ErrorIs(t, err, ErrConstraintViolation)
	var cv *ConstraintViolationError
	require.ErrorAs(t, err, &cv)
	assert.Equal(t, []string{"/b", "/c"}, cv.Paths)
	assert.False(t, tree.GetNode(f.store.Root(), "/c").Exists(), "rejected commit is not applied")

	// the purged value can be taken again
	require.NoError(t, f.set("/d", "foo", "bar"))

	assert.True(t, f.run(1400))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "bar"))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "bar2"))

	require.NoError(t, f.set("/c", "foo", "bar2"))
	assert.Equal(t, []string{"/c"}, f.query("/oak:index/foo", "foo", "bar2"))
}

func TestCleaner_UniqueDefaultThresholdKeepsEntries(t *testing.T) {
	f := newFixture(t, nil, uniqueIndex())
	f.clock.WaitUntil(1000)
	require.NoError(t, f.set("/a", "foo", "bar"))

	assert.True(t, f.run(1_000_000_000))
	assert.Equal(t, []string{"/a"}, f.query("/oak:index/foo", "foo", "bar"))
}

func TestCleaner_UniquePartialPurge(t *testing.T) {
	f := newFixture(t, nil, uniqueIndex())
	f.cleaner.SetCreatedTimeThreshold(100 * time.Millisecond)

	// two live paths for one value, written before uniqueness could be checked
	b := f.store.Root().Builder()
	gen := b.ChildPath("/oak:index/foo/:sync-index/foo").SetBool(propUnique, true).Child(Current.String())
	gen.Child("bar").Child(pathKey("/old")).SetInt64(propCreatedAt, 1000)
	gen.Child("bar").Child(pathKey("/young")).SetInt64(propCreatedAt, 1150)
	_, err := f.store.Merge(f.ctx, b, nil, tree.NewCommitInfo("test", "seed"))
	require.NoError(t, err)

	assert.True(t, f.run(1200))
	assert.Equal(t, []string{"/young"}, f.query("/oak:index/foo", "foo", "bar"))
}

func TestCleaner_UniqueRedefinedAsPlain(t *testing.T) {
	f := newFixture(t, nil, uniqueIndex())
	f.clock.WaitUntil(1000)
	require.NoError(t, f.set("/a", "foo", "bar"))

	f.install(fooIndex())
	require.NoError(t, f.set("/b", "foo", "baz"))
	bucket := tree.GetNode(f.store.Root(), "/oak:index/foo/:sync-index/foo")
	assert.False(t, bucket.HasProperty(propUnique), "plain writes clear the unique marker")

	// the first run rotates instead of purging entries without createdAt
	assert.True(t, f.run(10_000_000))
	assert.Equal(t, 1, f.cleaner.LastStats().Rotations)
	assert.Zero(t, f.cleaner.LastStats().PurgedEntries)
	assert.Equal(t, []string{"/b"}, f.query("/oak:index/foo", "foo", "baz"))
	assert.Equal(t, []string{"/a"}, f.query("/oak:index/foo", "foo", "bar"))

	assert.True(t, f.run(20_000_000))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "baz"))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "bar"))
}

func TestCleaner_PlainRedefinedAsUnique(t *testing.T) {
	f := newFixture(t, nil, fooIndex())
	f.cleaner.SetCreatedTimeThreshold(100 * time.Millisecond)

	require.NoError(t, f.set("/a", "foo", "bar"))
	assert.True(t, f.run(1000))
	require.NoError(t, f.set("/b", "foo", "baz"))

	f.install(uniqueIndex())

	// /a was demoted by the previous run and retires now; /b starts aging
	assert.True(t, f.run(2000))
	assert.Zero(t, f.cleaner.LastStats().Rotations)
	assert.Empty(t, f.query("/oak:index/foo", "foo", "bar"))
	assert.Equal(t, []string{"/b"}, f.query("/oak:index/foo", "foo", "baz"))

	assert.True(t, f.run(2050))
	assert.Equal(t, []string{"/b"}, f.query("/oak:index/foo", "foo", "baz"))

	assert.True(t, f.run(2200))
	assert.Empty(t, f.query("/oak:index/foo", "foo", "baz"))
}

func TestExpired(t *testing.T) {
	tests := []struct {
		watermark, createdAt, threshold int64
		want                            bool
	}{
		{1200, 1000, 100, true},
		{1200, 1100, 100, false}, // age == threshold is retained
		{1200, 1101, 100, false},
		{1200, 1099, 100, true},
		{1200, 1300, 0, false},
		{1200, 1200, 0, false},
		{1201, 1200, 0, true},
		{1 << 62, -(1 << 62) - 10, 1 << 62, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expired(tt.watermark, tt.createdAt, tt.threshold),
			"W=%d c=%d T=%d", tt.watermark, tt.createdAt, tt.threshold)
	}
}

func TestCleaner_SyncIndexPathsGating(t *testing.T) {
	f := newFixture(t, nil, fooIndex(),
		indexconfig.Definition{Path: "/oak:index/bar", Sync: true, Properties: []string{"bar"}},
		indexconfig.Definition{Path: "/oak:index/async", Properties: []string{"foo"}})

	assert.Empty(t, f.cleaner.GetSyncIndexPaths())
	assert.False(t, f.run(1000), "no active index")
	assert.False(t, tree.GetNode(f.store.Root(), "/oak:index/foo/"+CleanerStateNode).Exists())

	require.NoError(t, f.set("/a", "foo", "x"))
	assert.Equal(t, []string{"/oak:index/foo"}, f.cleaner.GetSyncIndexPaths())
	assert.False(t, tree.GetNode(f.store.Root(), "/oak:index/async/"+SyncIndexNode).Exists())
}

func TestCleaner_MissingLane(t *testing.T) {
	def := fooIndex()
	def.Lane = "fulltext"
	f := newFixture(t, nil, def)
	require.NoError(t, f.set("/a", "foo", "bar"))

	assert.False(t, f.run(1000), "only the default lane has progress")

	f.provider.Set("fulltext", 1000)
	changed, err := f.cleaner.Run(f.ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	state := tree.GetNode(f.store.Root(), "/oak:index/foo/"+CleanerStateNode)
	assert.Equal(t, "fulltext", state.String(propLane))
}

// failingStore fails merges of cleaner commits for one index.
type failingStore struct {
	*tree.MemoryNodeStore
	failIndex string
}

func (s *failingStore) Merge(ctx context.Context, b *tree.NodeBuilder, hook tree.CommitHook, info tree.CommitInfo) (*tree.NodeState, error) {
	if s.failIndex != "" && strings.Contains(info.Message, s.failIndex+" ") {
		return nil, tree.ErrMergeConflict
	}
	return s.MemoryNodeStore.Merge(ctx, b, hook, info)
}

func TestCleaner_FailureIsolation(t *testing.T) {
	store := &failingStore{MemoryNodeStore: tree.NewMemoryNodeStore()}
	f := newFixture(t, store,
		indexconfig.Definition{Path: "/oak:index/a", Sync: true, Properties: []string{"foo"}},
		indexconfig.Definition{Path: "/oak:index/b", Sync: true, Properties: []string{"foo"}})
	require.NoError(t, f.set("/x", "foo", "bar"))

	store.failIndex = "/oak:index/a"
	f.provider.Set(indexconfig.DefaultLane, 1000)
	changed, err := f.cleaner.Run(f.ctx)
	assert.True(t, changed)
	require.Error(t, err)
	assert.ErrorIs(t, err, tree.ErrMergeConflict)
	assert.Contains(t, err.Error(), "/oak:index/a")

	root := f.store.Root()
	assert.False(t, tree.GetNode(root, "/oak:index/a/"+CleanerStateNode).Exists(), "failed index keeps its state")
	assert.True(t, tree.GetNode(root, "/oak:index/b/"+CleanerStateNode).Exists())
	stats := f.cleaner.LastStats()
	assert.Equal(t, 1, stats.IndexesFailed)
	assert.Equal(t, 1, stats.IndexesCleaned)

	// the next run retries the failed index only
	store.failIndex = ""
	changed, err = f.cleaner.Run(f.ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, f.cleaner.LastStats().IndexesCleaned)
	assert.Equal(t, 1, f.cleaner.LastStats().IndexesSkipped)
}

type errProvider struct{}

func (errProvider) LaneInfo(context.Context, string) (async.Info, error) {
	return async.Info{}, errors.New("provider unavailable")
}

func TestCleaner_ProviderError(t *testing.T) {
	f := newFixture(t, nil, fooIndex())
	require.NoError(t, f.set("/a", "foo", "bar"))

	c := NewCleaner(f.store, indexconfig.SyncIndexPaths(f.store, indexconfig.DefaultIndexRoot), errProvider{}, nil)
	changed, err := c.Run(f.ctx)
	assert.False(t, changed)
	assert.ErrorContains(t, err, "provider unavailable")
}

func TestCleaner_CancelledContext(t *testing.T) {
	f := newFixture(t, nil, fooIndex())
	require.NoError(t, f.set("/a", "foo", "bar"))
	f.provider.Set(indexconfig.DefaultLane, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	changed, err := f.cleaner.Run(ctx)
	assert.False(t, changed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleaner_ConcurrentWriteDuringRotation(t *testing.T) {
	f := newFixture(t, nil, fooIndex())
	require.NoError(t, f.set("/a", "foo", "bar"))

	// a writer checks out before the cleaner runs and commits afterwards
	b := f.store.Root().Builder()
	b.ChildPath("/b").SetString("foo", "baz")

	assert.True(t, f.run(1000))

	_, err := f.store.Merge(f.ctx, b, f.hook, tree.NewCommitInfo("test", "late write"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, f.query("/oak:index/foo", "foo", "bar"))
	assert.Equal(t, []string{"/b"}, f.query("/oak:index/foo", "foo", "baz"))
}

func TestCleaner_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := persist_store.DefaultConfig()
	cfg.Path = dir

	store, err := persist_store.Open(cfg, nil)
	require.NoError(t, err)
	f := newFixture(t, store, fooIndex())
	require.NoError(t, f.set("/a", "foo", "bar"))
	assert.True(t, f.run(1000))
	require.NoError(t, store.Close())

	store, err = persist_store.Open(cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	f2 := newFixture(t, store)
	assert.Equal(t, []string{"/oak:index/foo"}, f2.cleaner.GetSyncIndexPaths())
	assert.False(t, f2.run(1000), "watermark already acted upon before restart")
	assert.Equal(t, []string{"/a"}, f2.query("/oak:index/foo", "foo", "bar"))

	assert.True(t, f2.run(2000))
	assert.Empty(t, f2.query("/oak:index/foo", "foo", "bar"))
}
