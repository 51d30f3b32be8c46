package safe

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 4096

// Cache keeps recently read immutable records in memory.
type Cache[V any] struct {
	lru *lru.Cache[string, V]
}

func NewCache[V any](size int) (*Cache[V], error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, V](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Cache[V]{lru: c}, nil
}

func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

func (c *Cache[V]) Add(key string, value V) {
	c.lru.Add(key, value)
}

func (c *Cache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// RemoveFunc drops every cached value for which match returns true.
func (c *Cache[V]) RemoveFunc(match func(V) bool) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		if v, ok := c.lru.Peek(key); ok && match(v) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
