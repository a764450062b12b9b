package upstream

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/libredge/libredge/pkg/protocol"
)

// responseCache is a size-bounded TTL cache for GET responses. Entries
// expire after the configured TTL regardless of use.
type responseCache struct {
	lru *expirable.LRU[string, *protocol.Response]
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	return &responseCache{
		lru: expirable.NewLRU[string, *protocol.Response](size, nil, ttl),
	}
}

func (c *responseCache) Get(key string) (*protocol.Response, bool) {
	return c.lru.Get(key)
}

func (c *responseCache) Add(key string, res *protocol.Response) {
	c.lru.Add(key, res)
}

// Len returns the number of live entries.
func (c *responseCache) Len() int {
	return c.lru.Len()
}
