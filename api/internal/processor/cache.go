package processor

import "sync"

// resultCache is a bounded FIFO keyed by the content hash of the upload
// bytes. At capacity the oldest inserted key is evicted. Re-putting an
// existing key replaces the value but keeps its original insertion slot.
type resultCache struct {
	mu   sync.Mutex
	cap  int
	keys []string
	m    map[string]*EnrichedResult
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &resultCache{
		cap: capacity,
		m:   make(map[string]*EnrichedResult, capacity),
	}
}

func (c *resultCache) get(key string) (*EnrichedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok
}

func (c *resultCache) put(key string, r *EnrichedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; ok {
		c.m[key] = r
		return
	}
	if len(c.keys) >= c.cap {
		oldest := c.keys[0]
		c.keys = c.keys[1:]
		delete(c.m, oldest)
	}
	c.keys = append(c.keys, key)
	c.m[key] = r
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = c.keys[:0]
	c.m = make(map[string]*EnrichedResult, c.cap)
}

func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
