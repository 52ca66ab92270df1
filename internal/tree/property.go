package tree

import (
	"slices"
	"strconv"
)

// PropertyState is the indexable view of a property: its name and the
// string form of each of its values. A nil *PropertyState means the
// property is absent.
type PropertyState struct {
	Name   string
	Values []string
}

// StringProperty creates a property state with the given values.
func StringProperty(name string, values ...string) *PropertyState {
	return &PropertyState{Name: name, Values: values}
}

// Equal reports whether both states carry the same values in the same order.
func (p *PropertyState) Equal(other *PropertyState) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Name == other.Name && slices.Equal(p.Values, other.Values)
}

// toPropertyState converts a stored property value into its indexable form.
func toPropertyState(name string, v any) *PropertyState {
	switch val := v.(type) {
	case string:
		return StringProperty(name, val)
	case []string:
		return StringProperty(name, slices.Clone(val)...)
	case int64:
		return StringProperty(name, strconv.FormatInt(val, 10))
	case bool:
		return StringProperty(name, strconv.FormatBool(val))
	default:
		return nil
	}
}

// propertyEqual compares two stored property values.
func propertyEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []string:
		bv, ok := b.([]string)
		return ok && slices.Equal(av, bv)
	default:
		return false
	}
}

// SameProperties reports whether two nodes carry identical properties.
func SameProperties(a, b *NodeState) bool {
	if len(a.props) != len(b.props) {
		return false
	}
	for name, av := range a.props {
		bv, ok := b.props[name]
		if !ok || !propertyEqual(av, bv) {
			return false
		}
	}
	return true
}
