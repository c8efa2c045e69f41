package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxCacheEntries bounds memory on read-heavy workloads; writes already
// clear the cache wholesale.
const maxCacheEntries = 512

type cacheEntry struct {
	results   []SearchResult
	total     int
	expiresAt time.Time
}

// queryCache memoizes fully materialized search results. Any write to the
// store invalidates every entry and advances the generation; results
// computed under an older generation are refused at put time, so a search
// racing a write can never park pre-write rows in a post-write cache.
type queryCache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	generation uint64
	entries    map[string]cacheEntry
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// snapshot returns the current write generation. Capture it before computing
// results that are meant to be cached.
func (c *queryCache) snapshot() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// cacheKey hashes the canonical query form: sorted terms, phrases,
// exclusions, sorted file types, and the effective limit.
func cacheKey(q SearchQuery, limit int) string {
	terms := append([]string(nil), q.Terms...)
	phrases := append([]string(nil), q.Phrases...)
	excluded := append([]string(nil), q.Excluded...)
	fileTypes := append([]string(nil), q.FileTypes...)
	sort.Strings(terms)
	sort.Strings(phrases)
	sort.Strings(excluded)
	sort.Strings(fileTypes)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%s\n%d",
		strings.Join(terms, " "),
		strings.Join(phrases, "|"),
		strings.Join(excluded, " "),
		strings.Join(fileTypes, ","),
		limit,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *queryCache) get(key string) ([]SearchResult, int, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, 0, false
	}
	return entry.results, entry.total, true
}

func (c *queryCache) put(key string, gen uint64, results []SearchResult, total int) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		// A write landed while these results were being computed; they may
		// predate it.
		return
	}
	if len(c.entries) >= maxCacheEntries {
		c.entries = make(map[string]cacheEntry)
	}
	c.entries[key] = cacheEntry{
		results:   results,
		total:     total,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *queryCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[string]cacheEntry)
}

func (c *queryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
