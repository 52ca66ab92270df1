package hybrid

import (
	"sort"

	"github.com/syntrixbase/hybridindex/internal/clock"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// Writer stages the synchronous entries of one index during one commit.
// Changes go to the builder it was created with; the caller merges it.
type Writer struct {
	indexPath string
	index     *tree.NodeBuilder
	clock     clock.Clock

	// touched records, per unique property, the values added by this commit
	// keyed by their node name.
	touched map[string]map[string]string
}

// NewWriter creates a writer bound to the builder of the index definition
// node at indexPath.
func NewWriter(indexPath string, index *tree.NodeBuilder, clk clock.Clock) *Writer {
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Writer{
		indexPath: indexPath,
		index:     index,
		clock:     clk,
		touched:   make(map[string]map[string]string),
	}
}

// PropertyUpdated records the change of an indexed property at path.
// before and after are nil when the property is absent on that side.
func (w *Writer) PropertyUpdated(path, property string, def indexconfig.PropertyDefinition, before, after *tree.PropertyState) {
	if !def.Sync {
		return
	}

	removed := valuesOf(before)
	added := valuesOf(after)
	for v := range added {
		delete(removed, v)
	}
	if len(removed) == 0 && len(added) == 0 {
		return
	}

	key := pathKey(path)
	if len(removed) > 0 {
		if gen := w.existingGeneration(property); gen != nil {
			for _, v := range sortedKeys(removed) {
				removeEntry(gen, valueKey(v), key)
			}
		}
	}
	if len(added) == 0 {
		return
	}

	bucket := w.index.Child(SyncIndexNode).Child(property)
	switch {
	case def.Unique && !bucket.Bool(propUnique):
		bucket.SetBool(propUnique, true)
	case !def.Unique && bucket.HasProperty(propUnique):
		bucket.RemoveProperty(propUnique)
	}
	gen := bucket.Child(Current.String())
	now := w.clock.Millis()
	for _, v := range sortedKeys(added) {
		vk := valueKey(v)
		vn := gen.Child(vk)
		if hashedValueKey(vk) {
			vn.SetString(propValue, v)
		}
		leaf := vn.Child(key)
		if def.Unique {
			leaf.SetInt64(propCreatedAt, now)
			if w.touched[property] == nil {
				w.touched[property] = make(map[string]string)
			}
			w.touched[property][vk] = v
		}
	}
}

// Done finishes the commit. For unique properties it fails with a
// *ConstraintViolationError when a value added by this commit is held by
// more than one live path.
func (w *Writer) Done() error {
	if len(w.touched) == 0 {
		return nil
	}
	state := w.index.NodeState()
	for _, property := range sortedKeys(w.touched) {
		bucket := bucketState(state, property)
		values := w.touched[property]
		for _, vk := range sortedKeys(values) {
			paths := livePaths(bucket, values[vk])
			if len(paths) > 1 {
				constraintViolations.WithLabelValues(w.indexPath).Inc()
				return &ConstraintViolationError{
					IndexPath: w.indexPath,
					Property:  property,
					Value:     values[vk],
					Paths:     paths,
				}
			}
		}
	}
	return nil
}

func (w *Writer) existingGeneration(property string) *tree.NodeBuilder {
	entries := w.index.GetChild(SyncIndexNode)
	if entries == nil {
		return nil
	}
	bucket := entries.GetChild(property)
	if bucket == nil {
		return nil
	}
	return bucket.GetChild(Current.String())
}

func removeEntry(gen *tree.NodeBuilder, vk, key string) {
	vn := gen.GetChild(vk)
	if vn == nil {
		return
	}
	vn.RemoveChild(key)
	if vn.ChildCount() == 0 {
		gen.RemoveChild(vk)
	}
}

// livePaths returns the deduplicated paths of value across all retained
// generations, the same view a lookup has.
func livePaths(bucket *tree.NodeState, value string) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, g := range generations {
		for _, p := range pathsOf(valueState(bucket, g, value)) {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths
}

func valuesOf(p *tree.PropertyState) map[string]struct{} {
	set := make(map[string]struct{})
	if p == nil {
		return set
	}
	for _, v := range p.Values {
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
