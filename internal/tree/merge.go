package tree

import (
	"errors"
	"fmt"
)

// ErrMergeConflict is returned when a checkout cannot be rebased onto the
// current head because both changed the same content.
var ErrMergeConflict = errors.New("merge conflict")

// rebase applies the changes between base and ours on top of theirs.
// Changes that touch disjoint content merge cleanly; a property changed on
// both sides to different values, or a subtree changed on one side and
// removed on the other, is a conflict.
func rebase(path string, base, ours, theirs *NodeState) (*NodeState, error) {
	switch {
	case ours == theirs:
		return ours, nil
	case ours == base:
		return theirs, nil
	case theirs == base:
		return ours, nil
	}

	b := theirs.Builder()

	for _, name := range unionPropertyNames(ours, theirs, base) {
		bv, _ := base.Property(name)
		ov, oOK := ours.Property(name)
		tv, tOK := theirs.Property(name)
		switch {
		case propertyEqual(ov, tv) && oOK == tOK:
			// same on both sides
		case propertyEqual(tv, bv):
			if oOK {
				b.mutableProps()[name] = ov
			} else {
				b.RemoveProperty(name)
			}
		case propertyEqual(ov, bv):
			// only theirs changed
		default:
			return nil, fmt.Errorf("%w: property %q at %s", ErrMergeConflict, name, path)
		}
	}

	// only names present in base or ours can differ between them
	for _, name := range unionChildNames(base, ours) {
		bc, oc, tc := base.Child(name), ours.Child(name), theirs.Child(name)
		if oc == bc {
			continue // theirs wins
		}
		childPath := Concat(path, name)
		switch {
		case !oc.Exists():
			// ours removed it
			if tc != bc {
				return nil, fmt.Errorf("%w: %s removed and changed concurrently", ErrMergeConflict, childPath)
			}
			b.RemoveChild(name)
		case !tc.Exists():
			if bc.Exists() {
				return nil, fmt.Errorf("%w: %s changed and removed concurrently", ErrMergeConflict, childPath)
			}
			b.SetChildNode(name, oc)
		default:
			cbase := bc
			if !cbase.Exists() {
				cbase = EmptyNode
			}
			merged, err := rebase(childPath, cbase, oc, tc)
			if err != nil {
				return nil, err
			}
			b.SetChildNode(name, merged)
		}
	}
	return b.NodeState(), nil
}

func unionPropertyNames(nodes ...*NodeState) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, n := range nodes {
		for name := range n.props {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
