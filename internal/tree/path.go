package tree

import "strings"

// RootPath is the path of the root node.
const RootPath = "/"

// Elements splits an absolute path into its names. The root path has no
// elements.
func Elements(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Concat appends name to parent.
func Concat(parent, name string) string {
	if parent == "" || parent == RootPath {
		return "/" + name
	}
	return parent + "/" + name
}

// ParentPath returns the parent of path. The parent of the root is the root.
func ParentPath(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return RootPath
	}
	return path[:i]
}

// Name returns the last element of path.
func Name(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// IsAncestor reports whether ancestor is a strict ancestor of path.
func IsAncestor(ancestor, path string) bool {
	if ancestor == RootPath {
		return path != RootPath && strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, ancestor+"/")
}

// IsHidden reports whether a node name is hidden from content processing.
// Hidden names start with a colon.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ":")
}

// GetNode walks from root along path. The result is never nil; use Exists
// to check whether the node is present.
func GetNode(root *NodeState, path string) *NodeState {
	n := root
	for _, name := range Elements(path) {
		n = n.Child(name)
		if !n.Exists() {
			return n
		}
	}
	return n
}
