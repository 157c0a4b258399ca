package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagedb/internal/base"
)

func TestPageCacheBasics(t *testing.T) {
	t.Parallel()

	cache, err := NewPageCache(10)
	require.NoError(t, err)

	// Test cache miss
	_, hit := cache.Get(1)
	assert.False(t, hit, "Expected cache miss for page 1")

	cache.Put(1, []byte{1, 2, 3})

	raw, hit := cache.Get(1)
	assert.True(t, hit, "Expected cache hit for page 1")
	assert.Equal(t, []byte{1, 2, 3}, raw)
	assert.Equal(t, 1, cache.Size())

	hits, misses := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	cache.ClearStats()
	hits, misses = cache.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestPageCacheOverwriteAndInvalidate(t *testing.T) {
	t.Parallel()

	cache, err := NewPageCache(MinCacheSize)
	require.NoError(t, err)

	cache.Put(4, []byte{1})
	cache.Put(4, []byte{2})
	raw, ok := cache.Get(4)
	require.True(t, ok)
	assert.Equal(t, []byte{2}, raw, "latest write wins")

	cache.Invalidate(4)
	_, ok = cache.Get(4)
	assert.False(t, ok)

	cache.Put(5, []byte{5})
	cache.Put(6, []byte{6})
	cache.Purge()
	assert.Zero(t, cache.Size())
}

func TestPageCacheEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	// Sizes below the minimum are raised to it.
	cache, err := NewPageCache(1)
	require.NoError(t, err)

	for id := range base.NodeID(MinCacheSize) {
		cache.Put(id, []byte{byte(id)})
	}
	assert.Equal(t, MinCacheSize, cache.Size())

	// Touch page 0 so page 1 becomes the oldest.
	_, ok := cache.Get(0)
	require.True(t, ok)
	cache.Put(MinCacheSize, []byte{0xff})

	assert.Equal(t, MinCacheSize, cache.Size())
	_, ok = cache.Get(1)
	assert.False(t, ok, "least recently used page is evicted")
	_, ok = cache.Get(0)
	assert.True(t, ok)
}

func TestPageCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache, err := NewPageCache(64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				id := base.NodeID((w*200 + i) % 100)
				cache.Put(id, []byte{byte(w)})
				cache.Get(id)
				if i%17 == 0 {
					cache.Invalidate(id)
				}
			}
		}()
	}
	wg.Wait()

	hits, misses := cache.Stats()
	assert.Equal(t, uint64(8*200), hits+misses)
	assert.LessOrEqual(t, cache.Size(), 64)
}
