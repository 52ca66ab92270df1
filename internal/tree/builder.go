package tree

import (
	"maps"
	"slices"
	"sort"

	"github.com/google/btree"
)

// NodeBuilder is a mutable, copy-on-write view of a node. Builders are not
// safe for concurrent use; a checkout belongs to a single caller.
type NodeBuilder struct {
	base     *NodeState              // state this builder started from
	checkout *NodeState              // root snapshot for root builders, nil for children
	props    map[string]any          // nil until the first property change
	children map[string]*NodeBuilder // materialized children
	removed  map[string]struct{}     // base children removed by this builder
}

// Base returns the snapshot a root builder was checked out from, nil for
// child builders.
func (b *NodeBuilder) Base() *NodeState {
	return b.checkout
}

// HasChild reports whether the named child exists in this builder.
func (b *NodeBuilder) HasChild(name string) bool {
	if _, ok := b.children[name]; ok {
		return true
	}
	if _, ok := b.removed[name]; ok {
		return false
	}
	return b.base.HasChild(name)
}

// GetChild returns a builder for an existing child, or nil when there is
// no such child.
func (b *NodeBuilder) GetChild(name string) *NodeBuilder {
	if !b.HasChild(name) {
		return nil
	}
	return b.Child(name)
}

// Child returns a builder for the named child, creating the child if it
// does not exist.
func (b *NodeBuilder) Child(name string) *NodeBuilder {
	if c, ok := b.children[name]; ok {
		return c
	}
	base := missingNode
	if _, gone := b.removed[name]; !gone {
		base = b.base.Child(name)
	}
	c := &NodeBuilder{base: base}
	b.setChild(name, c)
	return c
}

// ChildPath walks relPath below this builder, creating nodes as needed.
func (b *NodeBuilder) ChildPath(relPath string) *NodeBuilder {
	n := b
	for _, name := range Elements(relPath) {
		n = n.Child(name)
	}
	return n
}

// SetChildNode replaces the named child with a snapshot and returns a
// builder for it. A missing state is replaced by an empty node.
func (b *NodeBuilder) SetChildNode(name string, state *NodeState) *NodeBuilder {
	if !state.Exists() {
		state = EmptyNode
	}
	c := &NodeBuilder{base: state}
	b.setChild(name, c)
	return c
}

// RemoveChild removes the named child and reports whether it existed.
func (b *NodeBuilder) RemoveChild(name string) bool {
	existed := b.HasChild(name)
	delete(b.children, name)
	if b.base.HasChild(name) {
		if b.removed == nil {
			b.removed = make(map[string]struct{})
		}
		b.removed[name] = struct{}{}
	}
	return existed
}

// ChildNames returns the names of all current children in ascending order.
func (b *NodeBuilder) ChildNames() []string {
	var names []string
	b.base.EachChild(func(name string, _ *NodeState) bool {
		if _, ok := b.children[name]; ok {
			return true
		}
		if _, ok := b.removed[name]; ok {
			return true
		}
		names = append(names, name)
		return true
	})
	for name := range b.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChildCount returns the number of current children.
func (b *NodeBuilder) ChildCount() int {
	if len(b.children) == 0 && len(b.removed) == 0 {
		return b.base.ChildCount()
	}
	return len(b.ChildNames())
}

// HasProperty reports whether the property is set.
func (b *NodeBuilder) HasProperty(name string) bool {
	_, ok := b.properties()[name]
	return ok
}

// String returns a string property, "" when absent.
func (b *NodeBuilder) String(name string) string {
	s, _ := b.properties()[name].(string)
	return s
}

// Int64 returns an int64 property.
func (b *NodeBuilder) Int64(name string) (int64, bool) {
	v, ok := b.properties()[name].(int64)
	return v, ok
}

// Bool returns a bool property, false when absent.
func (b *NodeBuilder) Bool(name string) bool {
	v, _ := b.properties()[name].(bool)
	return v
}

// SetString sets a string property.
func (b *NodeBuilder) SetString(name, value string) *NodeBuilder {
	b.mutableProps()[name] = value
	return b
}

// SetStrings sets a multi-valued string property.
func (b *NodeBuilder) SetStrings(name string, values []string) *NodeBuilder {
	b.mutableProps()[name] = slices.Clone(values)
	return b
}

// SetInt64 sets an int64 property.
func (b *NodeBuilder) SetInt64(name string, value int64) *NodeBuilder {
	b.mutableProps()[name] = value
	return b
}

// SetBool sets a bool property.
func (b *NodeBuilder) SetBool(name string, value bool) *NodeBuilder {
	b.mutableProps()[name] = value
	return b
}

// RemoveProperty removes a property and reports whether it was set.
func (b *NodeBuilder) RemoveProperty(name string) bool {
	if !b.HasProperty(name) {
		return false
	}
	delete(b.mutableProps(), name)
	return true
}

// NodeState returns an immutable snapshot of the builder's current content.
// Unmodified subtrees are shared with the base state.
func (b *NodeBuilder) NodeState() *NodeState {
	changed := !b.base.Exists() || b.props != nil || len(b.removed) > 0
	states := make(map[string]*NodeState, len(b.children))
	for name, c := range b.children {
		s := c.NodeState()
		states[name] = s
		if s != b.base.Child(name) {
			changed = true
		}
	}
	if !changed {
		return b.base
	}

	n := &NodeState{exists: true, props: b.properties()}
	if b.props != nil {
		n.props = maps.Clone(b.props)
	}

	var children *btree.BTreeG[childEntry]
	if len(states) > 0 || len(b.removed) > 0 {
		children = b.base.cloneChildren()
		for name := range b.removed {
			children.Delete(childEntry{name: name})
		}
		for name, s := range states {
			children.ReplaceOrInsert(childEntry{name: name, state: s})
		}
	} else if b.base.ChildCount() > 0 {
		children = b.base.children
	}
	if children != nil && children.Len() > 0 {
		n.children = children
	}
	return n
}

// reset points a root builder at a new snapshot and drops staged changes.
func (b *NodeBuilder) reset(state *NodeState) {
	b.base = state
	b.checkout = state
	b.props = nil
	b.children = nil
	b.removed = nil
}

func (b *NodeBuilder) setChild(name string, c *NodeBuilder) {
	if b.children == nil {
		b.children = make(map[string]*NodeBuilder)
	}
	b.children[name] = c
	delete(b.removed, name)
}

func (b *NodeBuilder) properties() map[string]any {
	if b.props != nil {
		return b.props
	}
	if b.base == nil {
		return nil
	}
	return b.base.props
}

func (b *NodeBuilder) mutableProps() map[string]any {
	if b.props == nil {
		b.props = maps.Clone(b.base.props)
		if b.props == nil {
			b.props = make(map[string]any)
		}
	}
	return b.props
}
