package planning

import (
	"context"
	"sync"
	"time"
)

// Cache defaults.
const (
	DefaultRequestTTL    = 5 * time.Minute
	DefaultMaxEntries    = 1024
	DefaultStructuralTTL = time.Hour
)

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// RequestCache stores finished plans keyed by the request fingerprint.
// Implementations must be safe for concurrent use.
type RequestCache interface {
	Get(ctx context.Context, key string) (*ActionPlan, bool)
	Set(ctx context.Context, key string, plan *ActionPlan)
	Stats(ctx context.Context) CacheStats
	Purge(ctx context.Context)
}

type memoryCacheEntry struct {
	plan     *ActionPlan
	storedAt time.Time
}

// MemoryRequestCache is an in-process RequestCache with a TTL and a hard
// entry cap. When full, the oldest entry is evicted.
type MemoryRequestCache struct {
	mu         sync.Mutex
	entries    map[string]memoryCacheEntry
	ttl        time.Duration
	maxEntries int
	hits       uint64
	misses     uint64
	now        func() time.Time
}

// NewMemoryRequestCache creates a memory cache. Non-positive arguments fall
// back to the defaults.
func NewMemoryRequestCache(ttl time.Duration, maxEntries int) *MemoryRequestCache {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryRequestCache{
		entries:    make(map[string]memoryCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached plan for key, expiring stale entries on read.
func (c *MemoryRequestCache) Get(_ context.Context, key string) (*ActionPlan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.plan, true
}

// Set stores the plan, evicting the oldest entry if the cache is full.
func (c *MemoryRequestCache) Set(_ context.Context, key string, plan *ActionPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = memoryCacheEntry{plan: plan, storedAt: c.now()}
}

// Stats returns current counters.
func (c *MemoryRequestCache) Stats(_ context.Context) CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// Purge drops every entry. Counters keep accumulating.
func (c *MemoryRequestCache) Purge(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryCacheEntry)
}

func (c *MemoryRequestCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// structuralCache memoizes the compiled patterns for one configuration
// version. A version change or TTL expiry forces a rebuild.
type structuralCache struct {
	mu      sync.Mutex
	cached  *Structural
	builtAt time.Time
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

func newStructuralCache(ttl time.Duration) *structuralCache {
	if ttl <= 0 {
		ttl = DefaultStructuralTTL
	}
	return &structuralCache{ttl: ttl}
}

// get returns the compiled structure for the version, rebuilding when the
// cached one is missing, stale, or built from a different version.
func (c *structuralCache) get(version string, build func() (*Structural, error)) (*Structural, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.cached.Version == version && time.Since(c.builtAt) <= c.ttl {
		c.hits++
		return c.cached, true, nil
	}

	c.misses++
	built, err := build()
	if err != nil {
		return nil, false, err
	}
	c.cached = built
	c.builtAt = time.Now()
	return built, false, nil
}

// invalidate drops the cached structure, forcing a rebuild on next use.
func (c *structuralCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

func (c *structuralCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Hits: c.hits, Misses: c.misses}
	if c.cached != nil {
		stats.Entries = 1
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
