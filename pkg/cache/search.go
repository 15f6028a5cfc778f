package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type searchEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// SearchCache keeps the most recent query results. It is bounded by size and
// every entry also expires after ttl.
type SearchCache[V any] struct {
	storage *lru.Cache[string, searchEntry[V]]
	ttl     time.Duration
	now     func() time.Time
}

func NewSearchCache[V any](size int, ttl time.Duration) (*SearchCache[V], error) {
	storage, err := lru.New[string, searchEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &SearchCache[V]{storage: storage, ttl: ttl, now: time.Now}, nil
}

func (c *SearchCache[V]) Set(key string, value V) {
	c.storage.Add(key, searchEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

func (c *SearchCache[V]) Get(key string) (V, bool) {
	var zero V
	entry, ok := c.storage.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.storage.Remove(key)
		return zero, false
	}
	return entry.value, true
}

func (c *SearchCache[V]) Delete(key string) {
	c.storage.Remove(key)
}

func (c *SearchCache[V]) Clear() {
	c.storage.Purge()
}

func (c *SearchCache[V]) Len() int {
	return c.storage.Len()
}
