package cache

import (
	"runtime"
	"sync"
	"weak"

	cacheerrors "github.com/StrayDogSyn/weathercache/pkg/errors"
	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// WeakRefCache caches pointers to large, externally-owned objects without
// keeping them alive. Entries hold weak references only; once the owner
// drops its last strong reference the entry silently becomes a miss and is
// pruned on the next access. A cleanup callback registered at Set fires
// exactly once when the referent is reclaimed.
//
// Only pointer values can be observed weakly, so the cache is generic over
// the pointee type and accepts *T; storing a nil pointer is a usage error
// reported at Set. Cleanup callbacks must not capture the referent, or it
// will never be reclaimed.
type WeakRefCache[T any] struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[T]
	stats   types.CacheStats
}

// NewWeakRefCache creates an empty weak-reference cache.
func NewWeakRefCache[T any]() *WeakRefCache[T] {
	return &WeakRefCache[T]{
		entries: make(map[string]weak.Pointer[T]),
	}
}

// Set stores a non-owning reference to value. A non-nil cleanup is invoked
// once the value's owners release it. Storing a nil pointer returns a usage
// error immediately.
func (c *WeakRefCache[T]) Set(key string, value *T, cleanup func()) error {
	if value == nil {
		return cacheerrors.New(cacheerrors.ErrCodeNotObservable, "cannot weakly observe a nil pointer").
			WithComponent("weakref").WithKey(key)
	}

	ref := weak.Make(value)
	if cleanup != nil {
		runtime.AddCleanup(value, func(fn func()) { fn() }, cleanup)
	}

	c.mu.Lock()
	c.entries[key] = ref
	c.mu.Unlock()
	return nil
}

// Get returns the referenced value if its owners still hold it. A dead
// reference is pruned and reported as a miss.
func (c *WeakRefCache[T]) Get(key string) (*T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	value := ref.Value()
	if value == nil {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Expirations++
		return nil, false
	}

	c.stats.Hits++
	return value, true
}

// Delete removes the entry for key. The referent itself is untouched; any
// registered cleanup still fires when the owners release it.
func (c *WeakRefCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Clear drops all entries.
func (c *WeakRefCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]weak.Pointer[T])
}

// Prune removes entries whose referents have been reclaimed and returns the
// number removed.
func (c *WeakRefCache[T]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	pruned := 0
	for key, ref := range c.entries {
		if ref.Value() == nil {
			delete(c.entries, key)
			pruned++
		}
	}
	c.stats.Expirations += uint64(pruned)
	return pruned
}

// Len returns the number of entries, live or not yet pruned.
func (c *WeakRefCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *WeakRefCache[T]) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = len(c.entries)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
