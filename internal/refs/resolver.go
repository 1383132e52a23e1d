// Package refs builds the level-scoped reference sets a snippet is type
// checked against. Each set is backed by go/types packages converted from
// the interpreter symbol tables the host inventory reports.
package refs

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/mod/semver"

	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
	"github.com/ppiankov/livecode/internal/policy"
	"github.com/ppiankov/livecode/sdk/go/host"
)

// toolingFragments mark analyzer and tooling modules whose types would
// shadow the runtime ones.
var toolingFragments = []string{
	"/analysis",
	"analyzer",
	"/internal/tools",
	"golang.org/x/tools",
	"github.com/traefik/yaegi",
}

// IsTooling reports whether a module should never be a reference unit.
func IsTooling(path, location string) bool {
	if strings.HasSuffix(path, "_test") || strings.HasSuffix(path, ".test") {
		return true
	}
	for _, frag := range toolingFragments {
		if strings.Contains(path, frag) || strings.Contains(location, frag) {
			return true
		}
	}
	return false
}

// Resolver builds and caches one reference set per security level.
// Safe for concurrent use.
type Resolver struct {
	inv    inventory.Inventory
	policy *policy.Policy
	logger *slog.Logger

	mu     sync.Mutex
	sets   map[model.SecurityLevel]*Set
	builds atomic.Int64
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(inv inventory.Inventory, pol *policy.Policy, logger *slog.Logger) *Resolver {
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		inv:    inv,
		policy: pol,
		logger: logger,
		sets:   make(map[model.SecurityLevel]*Set),
	}
}

// Build returns the reference set for level, building it on first use.
// Disabled never builds anything and returns policy.ErrDisabled.
func (r *Resolver) Build(ctx context.Context, level model.SecurityLevel) (*Set, error) {
	if err := r.policy.Check(level); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sets[level]; ok {
		return s, nil
	}

	mods, err := r.inv.Modules(ctx)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	units, skipped := Dedupe(mods)
	u := newUniverse()
	paths := make([]string, 0, len(units))
	for p := range units {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	// Declare every package first so cross-package types get real names.
	for _, p := range paths {
		u.declare(p, units[p].Name)
	}
	var visible []string
	for _, p := range paths {
		unit := units[p]
		unit.Package = u.convert(unit.Path, unit.Name, unit.Symbols)
		if p == host.ImportPath || r.policy.IsReferenceAllowed(p, unit.Kind, level) {
			visible = append(visible, p)
		}
	}

	s := newSet(level, units, visible)
	r.sets[level] = s
	r.builds.Add(1)

	r.logger.Debug("reference set built",
		"level", level.String(),
		"units", s.Len(),
		"available", len(units),
		"skipped", skipped)
	return s, nil
}

// Builds returns how many reference sets have been built.
func (r *Resolver) Builds() int64 {
	return r.builds.Load()
}

// Reset drops every cached set. Sets already handed out stay valid.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = make(map[model.SecurityLevel]*Set)
}

// Dedupe turns inventory modules into reference units keyed by import path.
// Opaque and tooling modules are skipped. Duplicates keep the highest
// semantic version; equal versions merge their symbol tables. A merged unit
// takes the kind of its most widely visible contributor.
func Dedupe(mods []inventory.Module) (map[string]*Unit, int) {
	units := make(map[string]*Unit)
	skipped := 0
	for _, m := range mods {
		if m.Opaque() || IsTooling(m.Path, m.Location) {
			skipped++
			continue
		}

		cur, ok := units[m.Path]
		if !ok {
			units[m.Path] = &Unit{
				Path:      m.Path,
				Name:      m.Name,
				Version:   m.Version,
				Locations: []string{m.Location},
				Kind:      m.Kind,
				Symbols:   m.Symbols,
			}
			continue
		}

		switch compareVersions(m.Version, cur.Version) {
		case 1:
			*cur = Unit{
				Path:      m.Path,
				Name:      m.Name,
				Version:   m.Version,
				Locations: []string{m.Location},
				Kind:      m.Kind,
				Symbols:   m.Symbols,
			}
		case 0:
			cur.Symbols = mergeSymbols(cur.Symbols, m.Symbols)
			cur.Locations = append(cur.Locations, m.Location)
			if kindRank(m.Kind) < kindRank(cur.Kind) {
				cur.Kind = m.Kind
			}
		}
	}
	return units, skipped
}

// compareVersions orders semantic versions; invalid or empty versions sort
// below every valid one and equal to each other.
func compareVersions(a, b string) int {
	av, bv := semver.IsValid(a), semver.IsValid(b)
	switch {
	case av && bv:
		return semver.Compare(a, b)
	case av:
		return 1
	case bv:
		return -1
	default:
		return 0
	}
}

func mergeSymbols(a, b map[string]reflect.Value) map[string]reflect.Value {
	out := make(map[string]reflect.Value, len(a)+len(b))
	maps.Copy(out, b)
	maps.Copy(out, a)
	return out
}

func kindRank(k model.ModuleKind) int {
	switch k {
	case model.KindStdlib:
		return 0
	case model.KindHost:
		return 1
	case model.KindProject:
		return 2
	default:
		return 3
	}
}
