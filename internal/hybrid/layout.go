// Package hybrid maintains synchronous property index entries that are
// retired once an asynchronous index lane has caught up with them.
//
// Entries live below the index definition node:
//
//	<index>/:sync-index/<property>/current/<value>/<path>
//	<index>/:sync-index/<property>/previous/<value>/<path>
//	<index>/:sync-index-state
//
// Plain indexes write to current only. The cleaner retires previous and
// demotes current each time the lane watermark advances. Unique indexes use
// current alone; each path node carries a createdAt timestamp and is purged
// once the watermark is far enough past it.
package hybrid

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// Node names of the persisted layout.
const (
	SyncIndexNode    = ":sync-index"
	CleanerStateNode = ":sync-index-state"
)

// Property names of the persisted layout.
const (
	propUnique        = "unique"
	propCreatedAt     = "createdAt"
	propValue         = "value"
	propLane          = "lane"
	propLastIndexedTo = "lastIndexedTo"
	propLastRunAt     = "lastRunAt"
)

// maxValueKeyLength bounds the length of an escaped value used as a node
// name. Longer values are truncated and suffixed with their hash.
const maxValueKeyLength = 100

// emptyValueKey names the value node of the empty string.
const emptyValueKey = ":"

// Generation is the role of an entry bucket.
type Generation int

const (
	// Current accepts writes.
	Current Generation = iota
	// Previous is read-only and pending retirement.
	Previous
)

// generations lists every generation in lookup order.
var generations = [...]Generation{Current, Previous}

func (g Generation) String() string {
	if g == Previous {
		return "previous"
	}
	return "current"
}

// valueKey encodes an indexed value as a node name.
func valueKey(value string) string {
	if value == "" {
		return emptyValueKey
	}
	key := strings.ReplaceAll(url.PathEscape(value), ":", "%3A")
	if len(key) <= maxValueKeyLength {
		return key
	}
	return key[:maxValueKeyLength] + "," + strconv.FormatUint(xxhash.Sum64String(value), 16)
}

// hashedValueKey reports whether valueKey had to shorten the value.
func hashedValueKey(key string) bool {
	return strings.Contains(key, ",")
}

// pathKey encodes a content path as a node name.
func pathKey(path string) string {
	return url.PathEscape(path)
}

// decodePathKey reverses pathKey.
func decodePathKey(key string) (string, bool) {
	path, err := url.PathUnescape(key)
	if err != nil {
		return "", false
	}
	return path, true
}

// bucketState returns the entry bucket of a property below an index node.
func bucketState(index *tree.NodeState, property string) *tree.NodeState {
	return index.Child(SyncIndexNode).Child(property)
}

// valueState returns the node holding the paths of value in a generation.
// The result may not exist, and is nil when a hashed key belongs to another
// value.
func valueState(bucket *tree.NodeState, g Generation, value string) *tree.NodeState {
	key := valueKey(value)
	n := bucket.Child(g.String()).Child(key)
	if hashedValueKey(key) && n.String(propValue) != value {
		return nil
	}
	return n
}

// pathsOf decodes the paths stored below a value node.
func pathsOf(value *tree.NodeState) []string {
	paths := make([]string, 0, value.ChildCount())
	value.EachChild(func(name string, _ *tree.NodeState) bool {
		if p, ok := decodePathKey(name); ok {
			paths = append(paths, p)
		}
		return true
	})
	return paths
}

// countEntries returns the number of path entries in a generation.
func countEntries(gen *tree.NodeState) int {
	n := 0
	gen.EachChild(func(_ string, value *tree.NodeState) bool {
		n += value.ChildCount()
		return true
	})
	return n
}
