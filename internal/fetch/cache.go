package fetch

import (
	"sync"
	"time"

	"github.com/signalwatch/signalwatch/internal/model"
)

// cacheEntry is one cached fetch result. Entries are kept past their TTL
// so a failing upstream can still be served stale results.
type cacheEntry struct {
	fetchedAt time.Time
	articles  []model.Article
}

// articleCache provides thread-safe caching of fetch results per
// keyword/limit pair.
type articleCache struct {
	entries map[string]cacheEntry
	mu      sync.RWMutex
}

func newArticleCache() *articleCache {
	return &articleCache{entries: make(map[string]cacheEntry)}
}

func (c *articleCache) get(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *articleCache) set(key string, articles []model.Article) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		articles:  articles,
		fetchedAt: time.Now(),
	}
}

func (c *articleCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
