package resolver

import (
	"context"
	"sync"

	"github.com/githubnext/gh-uses/pkg/logger"
)

var cacheLog = logger.New("resolver:cache")

// Cache memoizes resolutions by TargetID. Concurrent requests for the same
// target share one call to the wrapped resolver. Canceled resolutions are
// not remembered.
type Cache struct {
	next Resolver

	mu      sync.Mutex
	entries map[string]*cacheEntry
	hits    int
	misses  int
}

type cacheEntry struct {
	done chan struct{}
	res  Resolution
}

// NewCache wraps next.
func NewCache(next Resolver) *Cache {
	return &Cache{next: next, entries: make(map[string]*cacheEntry)}
}

// Resolve implements Resolver.
func (c *Cache) Resolve(ctx context.Context, req Request) Resolution {
	key := TargetID(req)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		cacheLog.Printf("Cache hit: %s", key)
		select {
		case <-e.done:
			return e.res
		case <-ctx.Done():
			res, _ := FromContext(ctx)
			return res
		}
	}
	e := &cacheEntry{done: make(chan struct{})}
	c.entries[key] = e
	c.misses++
	c.mu.Unlock()

	cacheLog.Printf("Cache miss: %s", key)
	e.res = c.next.Resolve(ctx, req)
	if e.res.Reason == ReasonCanceled {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}
	close(e.done)
	return e.res
}

// Stats returns the number of memoized and forwarded requests.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
