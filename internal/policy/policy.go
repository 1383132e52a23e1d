// Package policy is the security contract shared by the reference resolver,
// the compiler and the validator. Levels decide what is visible and whether
// API use is inspected; the denylist decides what is dangerous.
package policy

import (
	"errors"
	"sort"

	"github.com/ppiankov/livecode/internal/denylist"
	"github.com/ppiankov/livecode/internal/inventory"
	"github.com/ppiankov/livecode/internal/model"
)

// ErrDisabled is returned when compilation is attempted at level Disabled.
var ErrDisabled = errors.New("dynamic compilation is disabled by security policy")

// Policy binds a denylist to the level rules. Safe for concurrent use.
type Policy struct {
	dl *denylist.Denylist
}

// New creates a Policy. A nil denylist uses the defaults.
func New(dl *denylist.Denylist) *Policy {
	if dl == nil {
		dl = denylist.NewDefault()
	}
	return &Policy{dl: dl}
}

// Default creates a Policy with the default denylist.
func Default() *Policy {
	return New(nil)
}

// Denylist returns the underlying denylist.
func (p *Policy) Denylist() *denylist.Denylist {
	return p.dl
}

// Check rejects the Disabled level before any compiler work happens.
func (p *Policy) Check(level model.SecurityLevel) error {
	if level <= model.Disabled || !level.Valid() {
		return ErrDisabled
	}
	return nil
}

// IsReferenceAllowed reports whether a module of the given kind is visible
// at level. Restricted and FullAccess share the std, host and project
// modules; only FullAccess adds loaded modules.
func (p *Policy) IsReferenceAllowed(path string, kind model.ModuleKind, level model.SecurityLevel) bool {
	if path == "" {
		return false
	}
	switch level {
	case model.Restricted:
		return kind == model.KindStdlib || kind == model.KindHost || kind == model.KindProject
	case model.FullAccess:
		return true
	default:
		return false
	}
}

// AllowedReferenceSet returns the sorted distinct paths of modules visible
// at level. Opaque modules are included; the resolver skips them later.
func (p *Policy) AllowedReferenceSet(level model.SecurityLevel, modules []inventory.Module) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range modules {
		if seen[m.Path] || !p.IsReferenceAllowed(m.Path, m.Kind, level) {
			continue
		}
		seen[m.Path] = true
		out = append(out, m.Path)
	}
	sort.Strings(out)
	return out
}

// InspectsAPIs reports whether post-compile API inspection runs at level.
func (p *Policy) InspectsAPIs(level model.SecurityLevel) bool {
	return level == model.Restricted
}

// IsAPIDangerous reports whether a qualified member is denied.
func (p *Policy) IsAPIDangerous(member string) bool {
	blocked, _ := p.dl.IsAPIDangerous(member)
	return blocked
}

// IsNamespaceForbidden reports whether an import path is forbidden.
func (p *Policy) IsNamespaceForbidden(path string) bool {
	blocked, _ := p.dl.IsNamespaceForbidden(path)
	return blocked
}
