package hybrid

import (
	"strings"

	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// PathRestriction limits lookup results relative to a filter path.
type PathRestriction int

const (
	// NoRestriction accepts every path.
	NoRestriction PathRestriction = iota
	// Exact accepts only the filter path itself.
	Exact
	// AllChildren accepts strict descendants of the filter path.
	AllChildren
	// DirectChildren accepts direct children of the filter path.
	DirectChildren
)

// Filter restricts the paths returned by a lookup.
type Filter struct {
	Path        string
	Restriction PathRestriction
}

// Matches reports whether path passes the filter.
func (f Filter) Matches(path string) bool {
	switch f.Restriction {
	case Exact:
		return path == f.Path
	case AllChildren:
		return tree.IsAncestor(f.Path, path)
	case DirectChildren:
		return tree.IsAncestor(f.Path, path) && tree.ParentPath(path) == normalizeParent(f.Path)
	default:
		return true
	}
}

func normalizeParent(path string) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return tree.RootPath
	}
	return path
}

// Lookup answers exact-match queries from a snapshot of an index node.
type Lookup struct {
	index *tree.NodeState
}

// NewLookup creates a lookup over the state of an index definition node.
func NewLookup(index *tree.NodeState) *Lookup {
	return &Lookup{index: index}
}

// Query returns the paths whose property holds value, merged across the
// retained generations. Each path appears once; current entries come first.
func (l *Lookup) Query(filter Filter, def indexconfig.PropertyDefinition, property, value string) []string {
	if !def.Sync {
		return nil
	}
	bucket := bucketState(l.index, property)
	if !bucket.Exists() {
		return nil
	}

	seen := make(map[string]bool)
	var paths []string
	for _, g := range generations {
		for _, p := range pathsOf(valueState(bucket, g, value)) {
			if seen[p] || !filter.Matches(p) {
				continue
			}
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}
