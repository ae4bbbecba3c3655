package search

import (
	"container/list"
	"sync"
)

// weightCache is a bounded map that evicts the oldest inserted key once full.
// Lookups do not refresh an entry's position.
type weightCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key     string
	weights Weights
}

func newWeightCache(capacity int) *weightCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &weightCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

func (c *weightCache) get(key string) (Weights, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*cacheEntry).weights.Clone(), true
}

func (c *weightCache) put(key string, w Weights) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).weights = w.Clone()
		return
	}
	if c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, weights: w.Clone()})
}

func (c *weightCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
