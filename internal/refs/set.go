package refs

import (
	"errors"
	"fmt"
	"go/types"
	"reflect"
	"sort"

	"github.com/ppiankov/livecode/internal/model"
)

// ErrNotInReferenceSet is returned by Set.Import for paths outside the set.
var ErrNotInReferenceSet = errors.New("package is not in the reference set")

// Unit is one deduplicated reference unit.
type Unit struct {
	Path      string
	Name      string
	Version   string
	Locations []string
	Kind      model.ModuleKind
	Symbols   map[string]reflect.Value
	Package   *types.Package
}

// Set is an immutable view over the units of one resolver universe.
// It implements types.Importer.
type Set struct {
	level     model.SecurityLevel
	available map[string]*Unit // every converted unit
	units     map[string]*Unit // visible units
	paths     []string
	byName    map[string][]string
	bySymbol  map[string][]string
}

func newSet(level model.SecurityLevel, available map[string]*Unit, visible []string) *Set {
	s := &Set{
		level:     level,
		available: available,
		units:     make(map[string]*Unit, len(visible)),
		byName:    make(map[string][]string),
		bySymbol:  make(map[string][]string),
	}
	for _, p := range visible {
		if u, ok := available[p]; ok {
			s.units[p] = u
		}
	}
	for p := range s.units {
		s.paths = append(s.paths, p)
	}
	sort.Strings(s.paths)

	for _, p := range s.paths {
		u := s.units[p]
		s.byName[u.Name] = append(s.byName[u.Name], p)
		for _, name := range u.Package.Scope().Names() {
			if obj := u.Package.Scope().Lookup(name); obj != nil && obj.Exported() {
				s.bySymbol[name] = append(s.bySymbol[name], p)
			}
		}
	}
	return s
}

// Level returns the security level the set was built for.
func (s *Set) Level() model.SecurityLevel {
	return s.level
}

// Len returns the number of visible units.
func (s *Set) Len() int {
	return len(s.paths)
}

// Paths returns the sorted import paths of the visible units.
func (s *Set) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Has reports whether path is visible.
func (s *Set) Has(path string) bool {
	_, ok := s.units[path]
	return ok
}

// Unit returns the visible unit for path.
func (s *Set) Unit(path string) (*Unit, bool) {
	u, ok := s.units[path]
	return u, ok
}

// Import implements types.Importer.
func (s *Set) Import(path string) (*types.Package, error) {
	u, ok := s.units[path]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInReferenceSet, path)
	}
	return u.Package, nil
}

// With returns a set that also contains extra and, for ModeAllLoaded,
// every loaded unit. Extra paths that match no unit are returned as missing.
func (s *Set) With(extra []string, mode model.ModuleMode) (*Set, []string) {
	var missing []string
	var added []string
	for _, p := range extra {
		if s.Has(p) {
			continue
		}
		if _, ok := s.available[p]; !ok {
			missing = append(missing, p)
			continue
		}
		added = append(added, p)
	}
	if mode == model.ModeAllLoaded {
		for p, u := range s.available {
			if u.Kind == model.KindLoaded && !s.Has(p) {
				added = append(added, p)
			}
		}
	}
	sort.Strings(missing)
	if len(added) == 0 {
		return s, missing
	}
	return newSet(s.level, s.available, append(s.Paths(), added...)), missing
}

// Exports returns the interpreter symbol table for exactly the visible
// units, keyed "path/name". The inner maps are shared and must not be
// modified.
func (s *Set) Exports() map[string]map[string]reflect.Value {
	out := make(map[string]map[string]reflect.Value, len(s.paths))
	for _, p := range s.paths {
		u := s.units[p]
		out[u.Path+"/"+u.Name] = u.Symbols
	}
	return out
}

// PackagesNamed returns the sorted paths of visible packages called name.
func (s *Set) PackagesNamed(name string) []string {
	return append([]string(nil), s.byName[name]...)
}

// Exporting returns the sorted paths of visible packages exporting symbol.
func (s *Set) Exporting(symbol string) []string {
	return append([]string(nil), s.bySymbol[symbol]...)
}

// Lookup returns the exported object path.symbol, or nil.
func (s *Set) Lookup(path, symbol string) types.Object {
	u, ok := s.units[path]
	if !ok {
		return nil
	}
	return u.Package.Scope().Lookup(symbol)
}

// TypesWithMember returns the sorted paths of visible packages that export
// a type named typeName having a field or method named member.
func (s *Set) TypesWithMember(typeName, member string) []string {
	var out []string
	for _, p := range s.bySymbol[typeName] {
		tn, ok := s.Lookup(p, typeName).(*types.TypeName)
		if !ok {
			continue
		}
		pkg := s.units[p].Package
		obj, _, _ := types.LookupFieldOrMethod(tn.Type(), true, pkg, member)
		if obj != nil && obj.Exported() {
			out = append(out, p)
		}
	}
	return out
}
