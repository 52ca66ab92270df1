// Package indexconfig provides index definition loading, validation, and
// storage of definitions in the node tree.
package indexconfig

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/syntrixbase/hybridindex/internal/tree"
	"gopkg.in/yaml.v3"
)

// DefaultIndexRoot is the node under which index definitions live.
const DefaultIndexRoot = "/oak:index"

// DefaultLane is the async lane used when a definition names none.
const DefaultLane = "async"

// Property names of a stored definition node.
const (
	propType          = "type"
	propAsync         = "async"
	propSync          = "sync"
	propUnique        = "unique"
	propProperties    = "properties"
	propIncludedPaths = "includedPaths"

	typeHybrid = "hybrid"
)

// Definition describes one index.
type Definition struct {
	// Path of the index definition node, e.g. /oak:index/foo.
	Path string `yaml:"path"`

	// Lane is the async lane whose progress retires synchronous entries.
	Lane string `yaml:"async"`

	// Sync enables synchronous entries at commit time.
	Sync bool `yaml:"sync"`

	// Unique enforces at most one live path per value. Implies Sync.
	Unique bool `yaml:"unique"`

	// Properties are the property names covered by the index.
	Properties []string `yaml:"properties"`

	// IncludedPaths restricts indexing to these subtrees. Empty means all
	// content.
	IncludedPaths []string `yaml:"includedPaths"`
}

// PropertyDefinition is the per-property view of a definition used by the
// writer and the lookup.
type PropertyDefinition struct {
	Name   string
	Sync   bool
	Unique bool
}

// Config represents the index definitions file.
type Config struct {
	Indexes []Definition `yaml:"indexes"`
}

// Errors
var (
	ErrEmptyPath          = errors.New("index path cannot be empty")
	ErrRelativePath       = errors.New("index path must be absolute")
	ErrNoProperties       = errors.New("index must cover at least one property")
	ErrEmptyProperty      = errors.New("property name cannot be empty")
	ErrDuplicateProperty  = errors.New("duplicate property in index")
	ErrDuplicateIndex     = errors.New("duplicate index definition")
	ErrDefinitionNotFound = errors.New("index definition not found")
)

// LoadFromFile loads definitions from a YAML file.
func LoadFromFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index definitions: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses definitions from YAML bytes.
func LoadFromBytes(data []byte) ([]Definition, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse index definitions: %w", err)
	}

	for i := range cfg.Indexes {
		cfg.Indexes[i].ApplyDefaults()
		if err := cfg.Indexes[i].Validate(); err != nil {
			return nil, fmt.Errorf("index %q: %w", cfg.Indexes[i].Path, err)
		}
	}

	if err := ValidateDefinitions(cfg.Indexes); err != nil {
		return nil, err
	}
	return cfg.Indexes, nil
}

// ApplyDefaults fills in the lane and the sync flag of unique indexes.
func (d *Definition) ApplyDefaults() {
	if d.Lane == "" {
		d.Lane = DefaultLane
	}
	if d.Unique {
		d.Sync = true
	}
}

// Validate validates a single definition.
func (d *Definition) Validate() error {
	if d.Path == "" {
		return ErrEmptyPath
	}
	if !strings.HasPrefix(d.Path, "/") || d.Path == tree.RootPath {
		return fmt.Errorf("%w: %q", ErrRelativePath, d.Path)
	}
	for _, name := range tree.Elements(d.Path) {
		if name == "" {
			return fmt.Errorf("%w: %q", ErrRelativePath, d.Path)
		}
	}

	if len(d.Properties) == 0 {
		return ErrNoProperties
	}
	seen := make(map[string]bool)
	for _, p := range d.Properties {
		if p == "" {
			return ErrEmptyProperty
		}
		if seen[p] {
			return fmt.Errorf("property %q: %w", p, ErrDuplicateProperty)
		}
		seen[p] = true
	}

	for _, p := range d.IncludedPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("included path %q: %w", p, ErrRelativePath)
		}
	}
	return nil
}

// ValidateDefinitions checks for duplicate index paths.
func ValidateDefinitions(defs []Definition) error {
	seen := make(map[string]bool)
	for _, d := range defs {
		if seen[d.Path] {
			return fmt.Errorf("%w: %q", ErrDuplicateIndex, d.Path)
		}
		seen[d.Path] = true
	}
	return nil
}

// Property returns the definition of a covered property.
func (d *Definition) Property(name string) (PropertyDefinition, bool) {
	if !slices.Contains(d.Properties, name) {
		return PropertyDefinition{}, false
	}
	return PropertyDefinition{Name: name, Sync: d.Sync || d.Unique, Unique: d.Unique}, true
}

// Includes reports whether content at path is covered by the index.
func (d *Definition) Includes(path string) bool {
	if len(d.IncludedPaths) == 0 {
		return true
	}
	for _, p := range d.IncludedPaths {
		if p == path || p == tree.RootPath || tree.IsAncestor(p, path) {
			return true
		}
	}
	return false
}

// Install writes the definition node into the tree.
func Install(root *tree.NodeBuilder, d Definition) {
	d.ApplyDefaults()
	n := root.ChildPath(d.Path)
	n.SetString(propType, typeHybrid)
	n.SetString(propAsync, d.Lane)
	n.SetBool(propSync, d.Sync)
	n.SetBool(propUnique, d.Unique)
	n.SetStrings(propProperties, d.Properties)
	if len(d.IncludedPaths) > 0 {
		n.SetStrings(propIncludedPaths, d.IncludedPaths)
	} else {
		n.RemoveProperty(propIncludedPaths)
	}
}

// Read reads the definition stored at path.
func Read(root *tree.NodeState, path string) (Definition, error) {
	n := tree.GetNode(root, path)
	if !n.Exists() || n.String(propType) != typeHybrid {
		return Definition{}, fmt.Errorf("%w: %s", ErrDefinitionNotFound, path)
	}
	d := Definition{
		Path:          path,
		Lane:          n.String(propAsync),
		Sync:          n.Bool(propSync),
		Unique:        n.Bool(propUnique),
		Properties:    n.Strings(propProperties),
		IncludedPaths: n.Strings(propIncludedPaths),
	}
	d.ApplyDefaults()
	return d, nil
}

// ReadAll returns the definitions stored directly below indexRoot, sorted
// by path.
func ReadAll(root *tree.NodeState, indexRoot string) []Definition {
	var defs []Definition
	tree.GetNode(root, indexRoot).EachChild(func(name string, _ *tree.NodeState) bool {
		if d, err := Read(root, tree.Concat(indexRoot, name)); err == nil {
			defs = append(defs, d)
		}
		return true
	})
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs
}

// SyncIndexPaths returns a supplier of the paths of all sync-enabled
// definitions currently stored in the tree.
func SyncIndexPaths(store tree.NodeStore, indexRoot string) func() []string {
	return func() []string {
		var paths []string
		for _, d := range ReadAll(store.Root(), indexRoot) {
			if d.Sync {
				paths = append(paths, d.Path)
			}
		}
		return paths
	}
}
