package persist_store

import (
	"fmt"

	"github.com/syntrixbase/hybridindex/internal/tree"
	"go.mongodb.org/mongo-driver/bson"
)

// Key prefixes in PebbleDB.
const (
	prefixNode = "t"      // Node properties: t{path} → bson document
	keyHead    = "m/head" // ID of the last persisted commit
)

// nodeKey builds the key of a node. The root is stored under "t/".
func nodeKey(path string) []byte {
	return []byte(prefixNode + path)
}

// subtreeBounds returns the key range holding all descendants of path.
// '0' is the byte following '/', so [p/, p0) covers exactly p's subtree.
func subtreeBounds(path string) (lower, upper []byte) {
	if path == tree.RootPath {
		return []byte(prefixNode + "/"), []byte(prefixNode + "0")
	}
	return []byte(prefixNode + path + "/"), []byte(prefixNode + path + "0")
}

// parseNodeKey extracts the node path from a node key.
func parseNodeKey(key []byte) (string, error) {
	if len(key) < 2 || key[0] != prefixNode[0] || key[1] != '/' {
		return "", fmt.Errorf("invalid node key %q", key)
	}
	return string(key[1:]), nil
}

// encodeProperties serializes a node's properties as a BSON document.
func encodeProperties(n *tree.NodeState) ([]byte, error) {
	doc := bson.D{}
	for _, name := range n.PropertyNames() {
		v, _ := n.Property(name)
		doc = append(doc, bson.E{Key: name, Value: v})
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node properties: %w", err)
	}
	return data, nil
}

// decodeProperties applies a BSON document to a builder.
func decodeProperties(data []byte, b *tree.NodeBuilder) error {
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode node properties: %w", err)
	}
	for _, e := range doc {
		switch v := e.Value.(type) {
		case string:
			b.SetString(e.Key, v)
		case int64:
			b.SetInt64(e.Key, v)
		case int32:
			b.SetInt64(e.Key, int64(v))
		case bool:
			b.SetBool(e.Key, v)
		case bson.A:
			values := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("property %q: unsupported array element %T", e.Key, item)
				}
				values = append(values, s)
			}
			b.SetStrings(e.Key, values)
		default:
			return fmt.Errorf("property %q: unsupported type %T", e.Key, e.Value)
		}
	}
	return nil
}
