package expansion

import (
	"sync"
	"time"

	"github.com/kailas-cloud/designdex/internal/domain/extension"
)

// Cache is the in-process tier. Entries are never evicted automatically.
type Cache struct {
	mu       sync.RWMutex
	entries  map[extension.Key]*extension.Entry
	abstract map[string]bool
	now      func() time.Time
}

// NewCache creates an empty in-process tier.
func NewCache() *Cache {
	return &Cache{
		entries:  make(map[extension.Key]*extension.Entry),
		abstract: make(map[string]bool),
		now:      time.Now,
	}
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key extension.Key) (extension.Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return extension.Entry{}, false
	}
	return *e, true
}

// Use returns a copy of the entry for key and records the access. prev is
// the access time it replaced.
func (c *Cache) Use(key extension.Key) (e extension.Entry, prev time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[key]
	if !ok {
		return extension.Entry{}, time.Time{}, false
	}
	prev = cur.LastUsedAt
	cur.LastUsedAt = c.now()
	return *cur, prev, true
}

// Upsert stores e unless an entry for its key already exists, and returns
// the canonical entry. created is true only for the call that stored it.
func (c *Cache) Upsert(e extension.Entry) (canonical extension.Entry, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.entries[e.Key]; ok {
		cur.LastUsedAt = c.now()
		return *cur, false
	}
	cp := e
	c.entries[e.Key] = &cp
	return cp, true
}

// Abstractness returns a remembered classifier verdict.
func (c *Cache) Abstractness(term string) (abstract, found bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	abstract, found = c.abstract[extension.NormalizeTerm(term)]
	return abstract, found
}

// SetAbstractness remembers a classifier verdict.
func (c *Cache) SetAbstractness(term string, abstract bool) {
	c.mu.Lock()
	c.abstract[extension.NormalizeTerm(term)] = abstract
	c.mu.Unlock()
}

// DeleteTerm drops every entry of term in mode, its query-wide expansion and
// its verdict. Returns the number of entries removed.
func (c *Cache) DeleteTerm(term string, mode extension.Mode) int {
	t := extension.NormalizeTerm(term)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.entries {
		if k.Term == t && (k.Mode == mode || k.Mode == extension.Expand) {
			delete(c.entries, k)
			n++
		}
	}
	delete(c.abstract, t)
	return n
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
