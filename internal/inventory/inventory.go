// Package inventory answers which modules the host process can expose to
// snippets. A module is an importable package together with the interpreter
// symbol table that backs it.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ppiankov/livecode/internal/model"
)

// Module is one loadable unit.
type Module struct {
	Path     string           `json:"path"`
	Name     string           `json:"name"`
	Version  string           `json:"version,omitempty"`
	Location string           `json:"location"`
	Kind     model.ModuleKind `json:"kind"`

	// Symbols maps exported names to values in yaegi's conventions.
	// Nil for opaque modules that cannot be opened.
	Symbols map[string]reflect.Value `json:"-"`
}

// Key returns the interpreter symbol table key, "path/name".
func (m Module) Key() string {
	return m.Path + "/" + m.Name
}

// Opaque reports whether the module has no symbol table.
func (m Module) Opaque() bool {
	return m.Symbols == nil
}

// Inventory is the host's queryable set of loadable modules.
type Inventory interface {
	Modules(ctx context.Context) ([]Module, error)
}

// Registry is an in-memory Inventory. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
	queries atomic.Int64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a module. Duplicates are kept; deduplication is the
// reference resolver's job.
func (r *Registry) Register(m Module) error {
	if m.Path == "" {
		return fmt.Errorf("inventory: module path is empty")
	}
	if m.Name == "" {
		m.Name = PackageName(m.Path)
	}
	if m.Kind == "" {
		m.Kind = model.KindProject
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
	return nil
}

// RegisterTable adds every package of a yaegi-style symbol table
// ("importpath/pkgname" keys). Malformed keys are skipped and reported
// together in the returned error.
func (r *Registry) RegisterTable(kind model.ModuleKind, location, version string, table map[string]map[string]reflect.Value) error {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		path, name, err := SplitKey(key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Register(Module{
			Path:     path,
			Name:     name,
			Version:  version,
			Location: location,
			Kind:     kind,
			Symbols:  table[key],
		}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterOpaque records a module the host knows about but cannot open.
func (r *Registry) RegisterOpaque(path, version, location string, kind model.ModuleKind) error {
	return r.Register(Module{Path: path, Version: version, Location: location, Kind: kind})
}

// Modules returns a snapshot of every registered module, ordered by path.
func (r *Registry) Modules(ctx context.Context) ([]Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.queries.Add(1)

	r.mu.RLock()
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Queries returns how many times Modules has been called.
func (r *Registry) Queries() int64 {
	return r.queries.Load()
}

// SplitKey splits a symbol table key "importpath/pkgname".
func SplitKey(key string) (path, name string, err error) {
	idx := strings.LastIndexByte(key, '/')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("inventory: malformed symbol table key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

// PackageName guesses the package name from an import path: the last
// element with any major version suffix removed.
func PackageName(path string) string {
	elems := strings.Split(path, "/")
	name := elems[len(elems)-1]
	if len(elems) > 1 && isMajorVersion(name) {
		name = elems[len(elems)-2]
	}
	// gopkg.in/yaml.v3
	if i := strings.Index(name, ".v"); i > 0 && isMajorVersion(name[i+1:]) {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '.' {
			return '_'
		}
		return r
	}, name)
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
