// Package cache holds compilation results keyed by a content hash of the
// compilation request. Entries live until Clear.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/livecode/internal/model"
)

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Stores    int64 `json:"stores"`
	Coalesced int64 `json:"coalesced"`
}

// Cache maps request keys to successful compilation results.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]model.CompilationResult
	group   singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	stores    atomic.Int64
	coalesced atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]model.CompilationResult)}
}

// Key derives the cache key for req. Sources differing only in line
// endings or surrounding whitespace share a key.
func Key(req model.CompilationRequest) string {
	req = req.WithDefaults()
	refs := slices.Clone(req.ExtraReferences)
	slices.Sort(refs)

	h := sha256.New()
	field := func(s string) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	field(NormalizeSource(req.Source))
	field(req.TypeName)
	field(req.Namespace)
	field(string(req.Mode))
	field(strings.Join(refs, "\x00"))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeSource converts CRLF to LF and trims surrounding whitespace.
func NormalizeSource(src string) string {
	return strings.TrimSpace(strings.ReplaceAll(src, "\r\n", "\n"))
}

// Get returns the module stored under key.
func (c *Cache) Get(key string) (*model.Module, bool) {
	res, ok := c.lookup(key)
	return res.Module, ok
}

func (c *Cache) lookup(key string) (model.CompilationResult, bool) {
	c.mu.RLock()
	res, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return res, ok
}

// PutIfSuccessful stores a successful result, including its warnings and
// updated code. Failed results are never stored.
func (c *Cache) PutIfSuccessful(key string, res model.CompilationResult) bool {
	if !res.Success || res.Module == nil {
		return false
	}
	res.CacheHit = false
	c.mu.Lock()
	c.entries[key] = res
	c.mu.Unlock()
	c.stores.Add(1)
	return true
}

// Do returns the cached result for key or runs compile, coalescing
// concurrent callers with the same key. A successful result is stored. A hit
// equals the original result except for CacheHit.
func (c *Cache) Do(key string, compile func() model.CompilationResult) model.CompilationResult {
	if res, ok := c.lookup(key); ok {
		return hit(res)
	}
	v, _, shared := c.group.Do(key, func() (any, error) {
		// A concurrent flight may have stored it since lookup.
		c.mu.RLock()
		res, ok := c.entries[key]
		c.mu.RUnlock()
		if ok {
			return hit(res), nil
		}
		res = compile()
		c.PutIfSuccessful(key, res)
		return res, nil
	})
	if shared {
		c.coalesced.Add(1)
	}
	return v.(model.CompilationResult)
}

// hit copies a stored result so callers cannot modify the cached slices.
func hit(res model.CompilationResult) model.CompilationResult {
	res.CacheHit = true
	res.Diagnostics = slices.Clone(res.Diagnostics)
	res.Violations = slices.Clone(res.Violations)
	if res.AmbiguousTypeCandidates != nil {
		amb := make(map[string][]string, len(res.AmbiguousTypeCandidates))
		for k, v := range res.AmbiguousTypeCandidates {
			amb[k] = slices.Clone(v)
		}
		res.AmbiguousTypeCandidates = amb
	}
	return res
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stores:    c.stores.Load(),
		Coalesced: c.coalesced.Load(),
	}
}
