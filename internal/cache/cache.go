// Package cache is a short-lived read-through cache of JSON responses for
// list endpoints.
package cache

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores JSON-encoded values by key.
type Cache struct {
	lru *expirable.LRU[string, []byte]
}

// New creates a cache holding at most size entries for ttl each.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

// Get returns the cached JSON for key, calling miss and storing its encoded
// result when the key is absent or force is set. Errors from miss are not
// cached.
func (c *Cache) Get(key string, force bool, miss func() (any, error)) ([]byte, error) {
	if !force {
		if b, ok := c.lru.Get(key); ok {
			return b, nil
		}
	}
	v, err := miss()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, b)
	return b, nil
}

// Del evicts key.
func (c *Cache) Del(key string) {
	c.lru.Remove(key)
}

// Purge evicts everything.
func (c *Cache) Purge() {
	c.lru.Purge()
}
