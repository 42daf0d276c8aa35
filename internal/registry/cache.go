package registry

import (
	"context"
	"sync"
)

// CacheStats counts lookups served by a CachingVerifier.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// CachingVerifier remembers answers per product name for the lifetime of a
// run. Failed lookups are not remembered so a later sighting retries.
type CachingVerifier struct {
	next  Verifier
	mu    sync.Mutex
	data  map[string]bool
	stats CacheStats
}

func NewCachingVerifier(next Verifier) *CachingVerifier {
	return &CachingVerifier{next: next, data: make(map[string]bool)}
}

func (c *CachingVerifier) Verify(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	if found, ok := c.data[name]; ok {
		c.stats.Hits++
		c.mu.Unlock()
		return found, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	found, err := c.next.Verify(ctx, name)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.data[name] = found
	c.mu.Unlock()
	return found, nil
}

func (c *CachingVerifier) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.data)
	return s
}
