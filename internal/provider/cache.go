package provider

import (
	"context"
	"sync"
	"time"

	"github.com/geodex/geodex/internal/driver"
)

// CacheStats counts query cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// cacheEntry remembers one query answer, including "genuinely absent".
type cacheEntry struct {
	desc      *Descriptor
	timestamp time.Time
}

// Cached wraps a Remote with a TTL cache over QueryService. Fetch loops
// revisit the same (asset type, tile, date) triples across runs, and
// provider listings are the slow part; answers rarely change within a
// session. Downloads pass through untouched. Errors are never cached.
type Cached struct {
	remote Remote
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	stats   CacheStats
}

var _ Remote = (*Cached)(nil)

// NewCached wraps remote with a query cache. A zero ttl means 15 minutes.
func NewCached(remote Remote, ttl time.Duration) *Cached {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Cached{
		remote:  remote,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(at *driver.AssetType, tile string, date time.Time) string {
	return at.Name + "|" + tile + "|" + date.Format("2006-01-02")
}

func (c *Cached) QueryService(ctx context.Context, at *driver.AssetType, tile string, date time.Time) (*Descriptor, error) {
	key := cacheKey(at, tile, date)
	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.timestamp) < c.ttl {
		c.stats.Hits++
		c.mu.Unlock()
		return entry.desc, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	desc, err := c.remote.QueryService(ctx, at, tile, date)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{desc: desc, timestamp: time.Now()}
	c.mu.Unlock()
	return desc, nil
}

func (c *Cached) Download(ctx context.Context, desc *Descriptor, destDir string) (string, error) {
	return c.remote.Download(ctx, desc, destDir)
}

// Stats returns a snapshot of hit/miss counts.
func (c *Cached) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Invalidate drops every cached answer.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
