package cache

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"pagedb/internal/base"
)

const (
	MinCacheSize = 16 // Minimum: hold a root-to-leaf path plus its siblings
)

// PageCache is an LRU of clean node pages shared by all transactions. It
// holds encoded bytes, never decoded nodes, so a transaction can edit what it
// loaded without touching the cached copy. Safe for concurrent use.
type PageCache struct {
	lru *freelru.SyncedLRU[base.NodeID, []byte]

	// Stats
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPageCache creates a page cache holding at least MinCacheSize pages.
func NewPageCache(maxSize int) (*PageCache, error) {
	maxSize = max(maxSize, MinCacheSize)

	lru, err := freelru.NewSynced[base.NodeID, []byte](uint32(maxSize), hashNodeID)
	if err != nil {
		return nil, err
	}
	return &PageCache{lru: lru}, nil
}

func hashNodeID(id base.NodeID) uint32 {
	var buf [base.IntSize]byte
	buf[0] = byte(id >> 24)
	buf[1] = byte(id >> 16)
	buf[2] = byte(id >> 8)
	buf[3] = byte(id)
	return uint32(xxhash.Sum64(buf[:]))
}

// Get returns the cached page of id.
func (c *PageCache) Get(id base.NodeID) ([]byte, bool) {
	raw, ok := c.lru.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return raw, true
}

// Put caches the page of id. The cache keeps raw; callers must not modify it
// afterwards.
func (c *PageCache) Put(id base.NodeID, raw []byte) {
	c.lru.Add(id, raw)
}

// Invalidate drops the page of id.
func (c *PageCache) Invalidate(id base.NodeID) {
	c.lru.Remove(id)
}

// Purge drops every page.
func (c *PageCache) Purge() {
	c.lru.Purge()
}

// Size returns the number of cached pages.
func (c *PageCache) Size() int {
	return c.lru.Len()
}

// Stats returns cache statistics
func (c *PageCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// ClearStats resets the cache's positive incrementing statistics
func (c *PageCache) ClearStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}
