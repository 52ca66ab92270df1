package hybrid

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/hybridindex/internal/async"
	"github.com/syntrixbase/hybridindex/internal/clock"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// fixture wires a store, the editor hook, a lane provider and a cleaner.
type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    tree.NodeStore
	clock    *clock.Virtual
	hook     *EditorHook
	provider *async.MemoryProvider
	cleaner  *Cleaner
}

func newFixture(t *testing.T, store tree.NodeStore, defs ...indexconfig.Definition) *fixture {
	t.Helper()
	if store == nil {
		store = tree.NewMemoryNodeStore()
	}
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		clock:    clock.NewVirtual(0),
		provider: async.NewMemoryProvider(),
	}
	f.hook = NewEditorHook(indexconfig.DefaultIndexRoot, f.clock, nil)
	f.cleaner = NewCleaner(store, indexconfig.SyncIndexPaths(store, indexconfig.DefaultIndexRoot), f.provider, nil, WithClock(f.clock))

	if len(defs) > 0 {
		f.install(defs...)
	}
	return f
}

// install writes definitions, replacing existing ones at the same path.
func (f *fixture) install(defs ...indexconfig.Definition) {
	f.t.Helper()
	b := f.store.Root().Builder()
	for _, d := range defs {
		indexconfig.Install(b, d)
	}
	_, err := f.store.Merge(f.ctx, b, f.hook, tree.NewCommitInfo("test", "install indexes"))
	require.NoError(f.t, err)
}

// set commits path.property = value, or removes the property for "".
func (f *fixture) set(path, property, value string) error {
	b := f.store.Root().Builder()
	n := b.ChildPath(path)
	if value == "" {
		n.RemoveProperty(property)
	} else {
		n.SetString(property, value)
	}
	_, err := f.store.Merge(f.ctx, b, f.hook, tree.NewCommitInfo("test", "set "+path))
	return err
}

func (f *fixture) remove(path string) error {
	b := f.store.Root().Builder()
	parent := b.ChildPath(tree.ParentPath(path))
	parent.RemoveChild(tree.Name(path))
	_, err := f.store.Merge(f.ctx, b, f.hook, tree.NewCommitInfo("test", "remove "+path))
	return err
}

func (f *fixture) run(watermark int64) bool {
	f.t.Helper()
	f.provider.Set(indexconfig.DefaultLane, watermark)
	changed, err := f.cleaner.Run(f.ctx)
	require.NoError(f.t, err)
	return changed
}

func (f *fixture) query(indexPath, property, value string) []string {
	root := f.store.Root()
	def, err := indexconfig.Read(root, indexPath)
	require.NoError(f.t, err)
	pd, ok := def.Property(property)
	require.True(f.t, ok)

	paths := NewLookup(tree.GetNode(root, indexPath)).Query(Filter{}, pd, property, value)
	sort.Strings(paths)
	if paths == nil {
		paths = []string{}
	}
	return paths
}

func fooIndex() indexconfig.Definition {
	return indexconfig.Definition{Path: "/oak:index/foo", Sync: true, Properties: []string{"foo"}}
}

func uniqueIndex() indexconfig.Definition {
	return indexconfig.Definition{Path: "/oak:index/foo", Unique: true, Properties: []string{"foo"}}
}

func longValue(n int) string {
	return strings.Repeat("x", n)
}
