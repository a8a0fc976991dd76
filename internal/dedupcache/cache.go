// Package dedupcache provides a small generic LRU cache wrapping
// github.com/hashicorp/golang-lru/v2 behind a Cacher interface. It backs
// the AleoListener's in-memory "recently seen requestId" set.
package dedupcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cacher is a small generic eviction-aware cache.
type Cacher[K comparable, V any] interface {
	Put(key K, value V)
	Get(key K) (V, bool)
	Evict(key K)
	Flush()
	Len() int
}

type lruCache[K comparable, V any] struct {
	inner *lru.Cache[K, V]
}

// New returns an LRU-evicting Cacher of the given capacity, backed by
// hashicorp/golang-lru/v2.
func New[K comparable, V any](capacity int) Cacher[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	c, err := lru.New[K, V](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, already guarded above.
		panic(err)
	}
	return &lruCache[K, V]{inner: c}
}

func (c *lruCache[K, V]) Put(key K, value V) { c.inner.Add(key, value) }

func (c *lruCache[K, V]) Get(key K) (V, bool) { return c.inner.Get(key) }

func (c *lruCache[K, V]) Evict(key K) { c.inner.Remove(key) }

func (c *lruCache[K, V]) Flush() { c.inner.Purge() }

func (c *lruCache[K, V]) Len() int { return c.inner.Len() }
