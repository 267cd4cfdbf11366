package cache

import (
	"container/list"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// BoundedConfig configures a BoundedCache. Zero values select defaults.
type BoundedConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	MaxSize         int64         `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Estimator overrides the default size estimator.
	Estimator types.SizeEstimator `yaml:"-"`
	// OnEvict, when set, is called for every evicted or expired entry.
	// It runs under the cache lock; keep it lightweight.
	OnEvict func(key string, value interface{}) `yaml:"-"`
	// Clock overrides the time source (tests).
	Clock types.Clock `yaml:"-"`

	Logger *slog.Logger `yaml:"-"`
}

// BoundedCache is a thread-safe in-memory cache with TTL expiry, LRU
// eviction, and byte/entry budgets. Expired entries are removed lazily on
// access and by a background sweep; both paths observe as a miss.
type BoundedCache struct {
	mu          sync.RWMutex
	items       map[string]*entry
	evictList   *list.List
	currentSize int64

	config    *BoundedConfig
	clock     types.Clock
	estimator types.SizeEstimator
	logger    *slog.Logger

	stats types.CacheStats

	stopCh chan struct{}
	closed bool
}

var (
	_ types.Store   = (*BoundedCache)(nil)
	_ types.Sweeper = (*BoundedCache)(nil)
)

// NewBoundedCache creates a bounded in-memory cache and starts its
// background expiry sweep.
func NewBoundedCache(config *BoundedConfig) *BoundedCache {
	if config == nil {
		config = &BoundedConfig{}
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 64 * 1024 * 1024 // 64MB
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	estimator := config.Estimator
	if estimator == nil {
		estimator = EstimateSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &BoundedCache{
		items:     make(map[string]*entry),
		evictList: list.New(),
		config:    config,
		clock:     types.ClockOrReal(config.Clock),
		estimator: estimator,
		logger:    logger,
		stats:     types.CacheStats{Capacity: config.MaxSize},
		stopCh:    make(chan struct{}),
	}

	go c.sweepLoop()

	return c
}

// Get returns the value for key if present and not expired. An expired entry
// is removed and counted as a miss.
func (c *BoundedCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	if e.expired(c.clock.Now()) {
		c.removeEntry(e, true)
		c.stats.Misses++
		return nil, false
	}

	e.touch(c.clock.Now())
	c.evictList.MoveToFront(e.element)
	c.stats.Hits++
	return e.value, true
}

// Set inserts or replaces the value for key. A non-positive ttl selects the
// configured default. Before inserting, least-recently-accessed entries are
// evicted until both the entry and byte budgets are satisfied. Set reports
// false when the value alone exceeds the byte budget; the budgets are never
// violated.
func (c *BoundedCache) Set(key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	size := c.estimator(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.config.MaxSize {
		c.logger.Warn("cache set rejected, entry exceeds budget",
			"key", key, "size", size, "max_size", c.config.MaxSize)
		return false
	}

	// Replace semantics: drop the old entry first so budget accounting sees
	// only the incoming size.
	if old, ok := c.items[key]; ok {
		c.removeEntry(old, false)
	}

	c.evictFor(size, 1)

	now := c.clock.Now()
	e := &entry{
		key:        key,
		value:      value,
		size:       size,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	}
	e.element = c.evictList.PushFront(e)
	c.items[key] = e
	c.currentSize += size

	return true
}

// Delete removes key if present. Idempotent.
func (c *BoundedCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeEntry(e, false)
	return true
}

// GetOrSet returns the cached value for key, or computes it via factory,
// stores it, and returns it. The factory runs outside the cache lock, so
// concurrent callers racing on the same missing key may each invoke it;
// there is no single-flight guarantee at this layer.
func (c *BoundedCache) GetOrSet(key string, factory func() (interface{}, error), ttl time.Duration) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := factory()
	if err != nil {
		return nil, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// InvalidatePattern deletes all keys matching the glob pattern and returns
// the number removed. The pattern syntax is that of path.Match.
func (c *BoundedCache) InvalidatePattern(pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*entry
	for key, e := range c.items {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return 0, err
		}
		if ok {
			matched = append(matched, e)
		}
	}
	for _, e := range matched {
		c.removeEntry(e, false)
	}
	return len(matched), nil
}

// Clear removes all entries.
func (c *BoundedCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*entry)
	c.evictList.Init()
	c.currentSize = 0
}

// Len returns the number of entries, including any not yet swept.
func (c *BoundedCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Size returns the current byte size.
func (c *BoundedCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Keys returns all cache keys (for debugging).
func (c *BoundedCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns a snapshot of cache statistics.
func (c *BoundedCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.items)
	stats.Size = c.currentSize
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if stats.Capacity > 0 {
		stats.Utilization = float64(c.currentSize) / float64(stats.Capacity)
	}
	return stats
}

// Resize changes the byte budget, evicting as needed to satisfy it.
func (c *BoundedCache) Resize(maxSize int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.config.MaxSize = maxSize
	c.stats.Capacity = maxSize
	c.evictFor(0, 0)
}

// Sweep removes all expired entries immediately and returns the number of
// bytes reclaimed.
func (c *BoundedCache) Sweep() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Close stops the background sweep. The cache remains usable.
func (c *BoundedCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.stopCh)
}

// evictFor evicts least-recently-accessed entries (ties fall back to
// insertion order, i.e. earliest createdAt) until an incoming entry of the
// given size and count fits both budgets. Caller holds the lock.
func (c *BoundedCache) evictFor(incomingSize int64, incomingCount int) {
	for c.currentSize+incomingSize > c.config.MaxSize && c.evictList.Len() > 0 {
		c.evictOldest()
	}
	for len(c.items)+incomingCount > c.config.MaxEntries && c.evictList.Len() > 0 {
		c.evictOldest()
	}
}

func (c *BoundedCache) evictOldest() {
	element := c.evictList.Back()
	if element == nil {
		return
	}
	e := element.Value.(*entry)
	c.removeEntry(e, false)
	c.stats.Evictions++
}

// removeEntry unlinks an entry from the map, the eviction list, and the size
// accounting. Caller holds the lock.
func (c *BoundedCache) removeEntry(e *entry, expired bool) {
	if e.element != nil {
		c.evictList.Remove(e.element)
	}
	delete(c.items, e.key)
	c.currentSize -= e.size
	if expired {
		c.stats.Expirations++
	}
	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

func (c *BoundedCache) sweepLocked() int64 {
	now := c.clock.Now()
	var expired []*entry
	for _, e := range c.items {
		if e.expired(now) {
			expired = append(expired, e)
		}
	}

	var reclaimed int64
	for _, e := range expired {
		reclaimed += e.size
		c.removeEntry(e, true)
	}
	return reclaimed
}

func (c *BoundedCache) sweepLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			reclaimed := c.sweepLocked()
			c.mu.Unlock()
			if reclaimed > 0 {
				c.logger.Debug("expiry sweep reclaimed space", "bytes", reclaimed)
			}
		}
	}
}
