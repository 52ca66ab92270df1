// Package tree provides the hierarchical, versioned node store that index
// data lives in.
//
// Snapshots are immutable NodeState values. Changes are staged on a
// NodeBuilder checked out from a snapshot and applied atomically through
// NodeStore.Merge. Unchanged subtrees are shared between snapshots, so
// pointer equality of two states implies equal content.
package tree

import (
	"slices"
	"sort"
	"sync"

	"github.com/google/btree"
)

// childEntry is a named child stored in a node's ordered children tree.
type childEntry struct {
	name  string
	state *NodeState
}

func childLess(a, b childEntry) bool {
	return a.name < b.name
}

// NodeState is an immutable node snapshot.
type NodeState struct {
	exists   bool
	props    map[string]any
	children *btree.BTreeG[childEntry] // nil when the node has no children

	cloneMu sync.Mutex // btree Clone mutates copy-on-write bookkeeping
}

var (
	// EmptyNode is an existing node without properties or children.
	EmptyNode = &NodeState{exists: true}

	missingNode = &NodeState{}
)

// Exists reports whether the node is present.
func (n *NodeState) Exists() bool {
	return n != nil && n.exists
}

// Property returns the raw value of a property.
func (n *NodeState) Property(name string) (any, bool) {
	v, ok := n.props[name]
	return v, ok
}

// HasProperty reports whether the property is set.
func (n *NodeState) HasProperty(name string) bool {
	_, ok := n.props[name]
	return ok
}

// String returns a string property, or "" if absent or of another type.
func (n *NodeState) String(name string) string {
	s, _ := n.props[name].(string)
	return s
}

// Int64 returns an int64 property.
func (n *NodeState) Int64(name string) (int64, bool) {
	v, ok := n.props[name].(int64)
	return v, ok
}

// Bool returns a bool property, false if absent.
func (n *NodeState) Bool(name string) bool {
	b, _ := n.props[name].(bool)
	return b
}

// Strings returns a multi-valued string property. A single string value is
// returned as a one-element slice.
func (n *NodeState) Strings(name string) []string {
	switch v := n.props[name].(type) {
	case []string:
		return slices.Clone(v)
	case string:
		return []string{v}
	default:
		return nil
	}
}

// PropertyState returns the indexable form of a property, nil if absent.
func (n *NodeState) PropertyState(name string) *PropertyState {
	v, ok := n.props[name]
	if !ok {
		return nil
	}
	return toPropertyState(name, v)
}

// PropertyNames returns the property names in sorted order.
func (n *NodeState) PropertyNames() []string {
	names := make([]string, 0, len(n.props))
	for name := range n.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasChild reports whether a child with the given name exists.
func (n *NodeState) HasChild(name string) bool {
	return n.Child(name).Exists()
}

// Child returns the named child. The result is never nil.
func (n *NodeState) Child(name string) *NodeState {
	if n == nil || n.children == nil {
		return missingNode
	}
	e, ok := n.children.Get(childEntry{name: name})
	if !ok {
		return missingNode
	}
	return e.state
}

// ChildCount returns the number of children.
func (n *NodeState) ChildCount() int {
	if n == nil || n.children == nil {
		return 0
	}
	return n.children.Len()
}

// ChildNames returns the child names in ascending order.
func (n *NodeState) ChildNames() []string {
	names := make([]string, 0, n.ChildCount())
	n.EachChild(func(name string, _ *NodeState) bool {
		names = append(names, name)
		return true
	})
	return names
}

// EachChild calls fn for every child in name order until fn returns false.
func (n *NodeState) EachChild(fn func(name string, child *NodeState) bool) {
	if n == nil || n.children == nil {
		return
	}
	n.children.Ascend(func(e childEntry) bool {
		return fn(e.name, e.state)
	})
}

// Builder checks out a mutable builder based on this state.
func (n *NodeState) Builder() *NodeBuilder {
	return &NodeBuilder{base: n, checkout: n}
}

func (n *NodeState) cloneChildren() *btree.BTreeG[childEntry] {
	if n == nil || n.children == nil {
		return btree.NewG[childEntry](16, childLess)
	}
	n.cloneMu.Lock()
	defer n.cloneMu.Unlock()
	return n.children.Clone()
}

// unionChildNames returns the sorted union of the child names of a and b.
func unionChildNames(a, b *NodeState) []string {
	an, bn := a.ChildNames(), b.ChildNames()
	out := make([]string, 0, len(an)+len(bn))
	i, j := 0, 0
	for i < len(an) || j < len(bn) {
		switch {
		case j == len(bn) || (i < len(an) && an[i] < bn[j]):
			out = append(out, an[i])
			i++
		case i == len(an) || bn[j] < an[i]:
			out = append(out, bn[j])
			j++
		default:
			out = append(out, an[i])
			i++
			j++
		}
	}
	return out
}

// Diff walks the nodes that differ between before and after, starting at
// path. fn is called for each differing node; either side may not exist.
// Returning false from fn skips the node's children.
func Diff(path string, before, after *NodeState, fn func(path string, before, after *NodeState) (bool, error)) error {
	if before == after || (!before.Exists() && !after.Exists()) {
		return nil
	}
	descend, err := fn(path, before, after)
	if err != nil || !descend {
		return err
	}
	for _, name := range unionChildNames(before, after) {
		bc, ac := before.Child(name), after.Child(name)
		if bc == ac {
			continue
		}
		if err := Diff(Concat(path, name), bc, ac, fn); err != nil {
			return err
		}
	}
	return nil
}
