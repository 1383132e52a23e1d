package denylist

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw pattern strings organized by category.
type Patterns struct {
	APIs       []string `yaml:"apis" json:"apis"`
	Namespaces []string `yaml:"namespaces" json:"namespaces"`
}

// Denylist holds compiled patterns for fast matching.
type Denylist struct {
	mu          sync.RWMutex
	exactAPIs   map[string]string // qualified member -> pattern
	apiPatterns []*regexp.Regexp
	namespaces  []string // import path prefixes
	raw         Patterns
}

// New creates a Denylist from raw patterns, compiling wildcard patterns.
func New(p Patterns) *Denylist {
	d := &Denylist{exactAPIs: make(map[string]string)}
	for _, a := range p.APIs {
		d.addAPI(a)
	}
	for _, n := range p.Namespaces {
		d.addNamespace(n)
	}
	return d
}

// NewDefault creates a Denylist with the hardcoded default patterns.
func NewDefault() *Denylist {
	return New(DefaultPatterns)
}

// DefaultPath returns ~/.livecode/denylist.yaml, or "" when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".livecode", "denylist.yaml")
}

// Load reads a denylist from a YAML file. Falls back to defaults if file doesn't exist.
// Setting merge: true at the top of the file extends the defaults instead of
// replacing them.
func Load(path string) (*Denylist, error) {
	if path == "" {
		path = DefaultPath()
		if path == "" {
			return NewDefault(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	var file struct {
		Merge    bool `yaml:"merge"`
		Patterns `yaml:",inline"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	if file.Merge {
		d := NewDefault()
		for _, a := range file.APIs {
			d.AddPattern("apis", a)
		}
		for _, n := range file.Namespaces {
			d.AddPattern("namespaces", n)
		}
		return d, nil
	}
	return New(file.Patterns), nil
}

// IsAPIDangerous reports whether a qualified member such as "os.Remove" or
// "os.File.Truncate" is denied. Returns (dangerous, matching pattern).
func (d *Denylist) IsAPIDangerous(member string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if p, ok := d.exactAPIs[member]; ok {
		return true, p
	}
	for _, re := range d.apiPatterns {
		if re.MatchString(member) {
			return true, re.String()
		}
	}
	return false, ""
}

// IsNamespaceForbidden reports whether an import path is inside a forbidden
// namespace. "syscall" forbids "syscall" and "syscall/js" but not "syscalls".
func (d *Denylist) IsNamespaceForbidden(path string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ns := range d.namespaces {
		if path == ns || strings.HasPrefix(path, ns+"/") {
			return true, ns
		}
	}
	return false, ""
}

// AddPattern adds a pattern to the denylist at runtime.
func (d *Denylist) AddPattern(category, pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch category {
	case "apis":
		d.addAPI(pattern)
	case "namespaces":
		d.addNamespace(pattern)
	}
}

func (d *Denylist) addAPI(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	d.raw.APIs = append(d.raw.APIs, pattern)
	if !strings.Contains(pattern, "*") {
		d.exactAPIs[pattern] = pattern
		return
	}
	if compiled, err := regexp.Compile("^" + patternToRegex(pattern) + "$"); err == nil {
		d.apiPatterns = append(d.apiPatterns, compiled)
	}
}

func (d *Denylist) addNamespace(ns string) {
	ns = strings.TrimSuffix(strings.TrimSpace(ns), "/...")
	if ns == "" {
		return
	}
	d.raw.Namespaces = append(d.raw.Namespaces, ns)
	d.namespaces = append(d.namespaces, ns)
}

// Patterns returns a copy of the raw patterns, sorted.
func (d *Denylist) Patterns() Patterns {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := Patterns{
		APIs:       append([]string(nil), d.raw.APIs...),
		Namespaces: append([]string(nil), d.raw.Namespaces...),
	}
	sort.Strings(p.APIs)
	sort.Strings(p.Namespaces)
	return p
}

// ToMap returns the raw patterns as a map for serialization.
func (d *Denylist) ToMap() map[string]any {
	p := d.Patterns()
	return map[string]any{
		"apis":       p.APIs,
		"namespaces": p.Namespaces,
	}
}

// patternToRegex converts a simple glob-like pattern to a regex.
// "*" matches any run of characters, including dots.
func patternToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(pattern)
	return strings.ReplaceAll(escaped, `\*`, ".*")
}
