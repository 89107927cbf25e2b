package sqliter

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultStatementCacheSize is the per-connection statement cache capacity
// used when none is configured.
const DefaultStatementCacheSize = 25

// StatementCache is a bounded least-recently-used map from SQL text to the
// token owning its compiled statement.
//
// The cache never finalizes anything itself: every token that leaves it,
// through eviction, replacement, Remove or EvictAll, is handed back to the
// caller, who must finalize it. StatementCache is not safe for concurrent
// use; Registry serializes access to it.
type StatementCache struct {
	lru      *simplelru.LRU[string, *Token[Stmt]]
	capacity int
	// evicted collects the entries dropped by the LRU during one call.
	evicted []*Token[Stmt]
}

// NewStatementCache creates a cache holding at most capacity statements.
// A capacity below one is raised to one.
func NewStatementCache(capacity int) *StatementCache {
	if capacity < 1 {
		capacity = 1
	}
	c := &StatementCache{capacity: capacity}
	// NewLRU only fails for a non-positive size
	c.lru, _ = simplelru.NewLRU[string, *Token[Stmt]](capacity, func(_ string, ref *Token[Stmt]) {
		c.evicted = append(c.evicted, ref)
	})
	return c
}

// Put inserts or replaces the entry for sql and marks it most recently used.
// It returns the tokens the caller now owns: the least recently used entry
// if one had to make room, and the previous token for sql if it was replaced
// by a different one.
func (c *StatementCache) Put(sql string, ref *Token[Stmt]) []*Token[Stmt] {
	prev, replaced := c.lru.Peek(sql)
	c.lru.Add(sql, ref)

	out := c.drain()
	if replaced && prev != ref {
		out = append(out, prev)
	}
	return out
}

// Get returns the token cached for sql and marks it most recently used.
func (c *StatementCache) Get(sql string) (*Token[Stmt], bool) {
	return c.lru.Get(sql)
}

// Contains reports whether sql is cached without touching its recency.
func (c *StatementCache) Contains(sql string) bool {
	return c.lru.Contains(sql)
}

// Remove drops the entry for sql and returns its token to the caller.
func (c *StatementCache) Remove(sql string) (*Token[Stmt], bool) {
	ref, ok := c.lru.Peek(sql)
	if !ok {
		return nil, false
	}
	c.lru.Remove(sql)
	c.drain()
	return ref, true
}

// EvictAll empties the cache and returns every token, least recently used first.
func (c *StatementCache) EvictAll() []*Token[Stmt] {
	out := make([]*Token[Stmt], 0, c.lru.Len())
	for {
		_, ref, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		out = append(out, ref)
	}
	c.drain()
	return out
}

// Keys returns the cached SQL texts from least to most recently used.
func (c *StatementCache) Keys() []string {
	return c.lru.Keys()
}

// Len returns the number of cached statements.
func (c *StatementCache) Len() int {
	return c.lru.Len()
}

// Cap returns the capacity fixed at construction.
func (c *StatementCache) Cap() int {
	return c.capacity
}

func (c *StatementCache) drain() []*Token[Stmt] {
	if len(c.evicted) == 0 {
		return nil
	}
	out := c.evicted
	c.evicted = nil
	return out
}
