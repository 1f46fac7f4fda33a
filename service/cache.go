package service

import (
	"container/list"
	"sync"
)

type cacheEntry struct {
	key     string
	results []*QueryResult
}

// queryCache keeps the most recently used query results.
type queryCache struct {
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
	mu         sync.Mutex
}

func (c *queryCache) get(key string) ([]*QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, found := c.entries[key]
	if !found {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).results, true
}

func (c *queryCache) put(key string, results []*QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, found := c.entries[key]; found {
		elem.Value.(*cacheEntry).results = results
		c.order.MoveToFront(elem)
		return
	}
	for c.order.Len() >= c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, results: results})
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func newQueryCache(maxEntries int) *queryCache {
	if maxEntries <= 0 {
		return nil
	}
	return &queryCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}
