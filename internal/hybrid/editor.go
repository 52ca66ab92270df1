package hybrid

import (
	"log/slog"

	"github.com/syntrixbase/hybridindex/internal/clock"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// EditorHook is a commit hook that keeps the synchronous entries of every
// sync-enabled index up to date with the content changes of a commit.
// It runs inside the store's merge, so unique checks see the rebased
// state of the tree.
type EditorHook struct {
	indexRoot string
	clock     clock.Clock
	logger    *slog.Logger
}

var _ tree.CommitHook = (*EditorHook)(nil)

// NewEditorHook creates a hook for the index definitions below indexRoot.
func NewEditorHook(indexRoot string, clk clock.Clock, logger *slog.Logger) *EditorHook {
	if indexRoot == "" {
		indexRoot = indexconfig.DefaultIndexRoot
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EditorHook{
		indexRoot: indexRoot,
		clock:     clk,
		logger:    logger.With("component", "hybrid-editor"),
	}
}

type indexEditor struct {
	def    indexconfig.Definition
	writer *Writer
}

// ProcessCommit implements tree.CommitHook.
func (h *EditorHook) ProcessCommit(before, after *tree.NodeState, info tree.CommitInfo) (*tree.NodeState, error) {
	var editors []indexEditor
	builder := after.Builder()
	for _, def := range indexconfig.ReadAll(after, h.indexRoot) {
		if !def.Sync {
			continue
		}
		editors = append(editors, indexEditor{
			def:    def,
			writer: NewWriter(def.Path, builder.ChildPath(def.Path), h.clock),
		})
	}
	if len(editors) == 0 {
		return after, nil
	}

	err := tree.Diff(tree.RootPath, before, after, func(path string, b, a *tree.NodeState) (bool, error) {
		if path == h.indexRoot || tree.IsHidden(tree.Name(path)) {
			return false, nil
		}
		for _, e := range editors {
			if !e.def.Includes(path) {
				continue
			}
			for _, name := range e.def.Properties {
				pb, pa := propertyOf(b, name), propertyOf(a, name)
				if pb.Equal(pa) {
					continue
				}
				pd, _ := e.def.Property(name)
				e.writer.PropertyUpdated(path, name, pd, pb, pa)
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	for _, e := range editors {
		if err := e.writer.Done(); err != nil {
			h.logger.Info("Commit rejected", "commit", info.ID, "index", e.def.Path, "error", err)
			return nil, err
		}
	}
	return builder.NodeState(), nil
}

func propertyOf(n *tree.NodeState, name string) *tree.PropertyState {
	if !n.Exists() {
		return nil
	}
	return n.PropertyState(name)
}
