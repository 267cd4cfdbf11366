package cache

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	cacheerrors "github.com/StrayDogSyn/weathercache/pkg/errors"
	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// costEpsilon keeps the cheapness factor finite and in (0, 1] for
// non-negative regeneration costs.
const costEpsilon = 1.0

// ScoreWeights are the relative weights of the four eviction factors. They
// must sum to 1.0 so scores stay comparable across configurations.
type ScoreWeights struct {
	Age    float64 `yaml:"age"`
	Rarity float64 `yaml:"rarity"`
	Cost   float64 `yaml:"cost"`
	Size   float64 `yaml:"size"`
}

// DefaultScoreWeights returns the standard eviction weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Age: 0.3, Rarity: 0.3, Cost: 0.2, Size: 0.2}
}

func (w ScoreWeights) validate() error {
	sum := w.Age + w.Rarity + w.Cost + w.Size
	if math.Abs(sum-1.0) > 1e-6 {
		return cacheerrors.Newf(cacheerrors.ErrCodeInvalidWeights,
			"eviction weights must sum to 1.0, got %.6f", sum).
			WithComponent("costaware")
	}
	return nil
}

// TTLHint adjusts the category base TTL for a single request. A positive
// Override wins outright; otherwise a positive Multiplier scales the base
// (for example, a forecast request spanning several days doubles it).
type TTLHint struct {
	Multiplier float64
	Override   time.Duration
}

// SetOptions carries the per-entry cost metadata supplied at Set.
type SetOptions struct {
	// Cost is the non-negative regeneration cost (API fee, compute time).
	// It biases eviction only; correctness never depends on it.
	Cost float64
	// TTL adjusts the category base TTL for this entry.
	TTL TTLHint
	// CompressionRatio is the observed compressed/uncompressed size ratio
	// of the payload. Diagnostic only.
	CompressionRatio float64
}

// CostAwareConfig configures a CostAwareCache.
type CostAwareConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	MaxSize         int64         `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Weights         ScoreWeights  `yaml:"weights"`
	// CategoryTTLs maps each content category to its base TTL. Categories
	// not listed fall back to DefaultTTL.
	CategoryTTLs map[types.ContentCategory]time.Duration `yaml:"category_ttls"`

	Clock  types.Clock  `yaml:"-"`
	Logger *slog.Logger `yaml:"-"`
}

// DefaultCategoryTTLs returns the standard per-category lifetimes: short
// for volatile analysis results, long for stable translations.
func DefaultCategoryTTLs() map[types.ContentCategory]time.Duration {
	return map[types.ContentCategory]time.Duration{
		types.CategoryCurrentWeather:  10 * time.Minute,
		types.CategoryForecast:        30 * time.Minute,
		types.CategoryWeatherAnalysis: 15 * time.Minute,
		types.CategoryAIInsight:       time.Hour,
		types.CategoryTranslation:     24 * time.Hour,
		types.CategoryChart:           time.Hour,
		types.CategoryImage:           2 * time.Hour,
		types.CategoryQueryResult:     5 * time.Minute,
	}
}

type costEntry struct {
	key              string
	data             []byte
	category         types.ContentCategory
	cost             float64
	compressionRatio float64
	createdAt        time.Time
	ttl              time.Duration
	accessCount      int64
	lastAccess       time.Time
}

func (e *costEntry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) > e.ttl
}

// CostAwareCache specializes the in-memory cache for expensive-to-regenerate
// payloads. Under budget pressure it evicts by a weighted score instead of
// plain LRU: entries that are old relative to their own TTL, rarely
// accessed, cheap to regenerate, or large are evicted first. Each entry is
// tagged with a content category that selects its base TTL.
//
// Unlike the base and tiered caches, GetOrCompute coalesces concurrent
// computations for the same key, since duplicate recomputation here carries
// a real cost.
type CostAwareCache struct {
	mu          sync.RWMutex
	items       map[string]*costEntry
	currentSize int64

	config *CostAwareConfig
	clock  types.Clock
	logger *slog.Logger

	flight singleflight.Group

	stats types.CacheStats

	stopCh chan struct{}
	closed bool
}

// NewCostAwareCache creates a cost-aware cache and starts its background
// expiry sweep. Malformed weights fail construction.
func NewCostAwareCache(config *CostAwareConfig) (*CostAwareCache, error) {
	if config == nil {
		config = &CostAwareConfig{}
	}
	if config.Weights == (ScoreWeights{}) {
		config.Weights = DefaultScoreWeights()
	}
	if err := config.Weights.validate(); err != nil {
		return nil, err
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 500
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 128 * 1024 * 1024 // 128MB
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 30 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.CategoryTTLs == nil {
		config.CategoryTTLs = DefaultCategoryTTLs()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &CostAwareCache{
		items:  make(map[string]*costEntry),
		config: config,
		clock:  types.ClockOrReal(config.Clock),
		logger: logger,
		stats:  types.CacheStats{Capacity: config.MaxSize},
		stopCh: make(chan struct{}),
	}

	go c.sweepLoop()

	return c, nil
}

// Get returns the payload for key if present and not expired.
func (c *CostAwareCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if e.expired(c.clock.Now()) {
		c.removeLocked(e, true)
		c.stats.Misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccess = c.clock.Now()
	c.stats.Hits++
	return e.data, true
}

// Set stores the payload under key with the TTL resolved from its category
// and options. Under budget pressure the highest-scoring entries are
// evicted first. A payload larger than the whole byte budget is rejected.
func (c *CostAwareCache) Set(key string, data []byte, category types.ContentCategory, opts SetOptions) error {
	size := int64(len(data))
	if size > c.config.MaxSize {
		return cacheerrors.Newf(cacheerrors.ErrCodeEntryTooLarge,
			"entry of %d bytes exceeds budget of %d", size, c.config.MaxSize).
			WithComponent("costaware").WithKey(key)
	}

	ttl := c.effectiveTTL(category, opts.TTL)
	cost := opts.Cost
	if cost < 0 {
		cost = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[key]; ok {
		c.removeLocked(old, false)
	}

	c.evictByScoreLocked(size, 1)

	now := c.clock.Now()
	c.items[key] = &costEntry{
		key:              key,
		data:             data,
		category:         category,
		cost:             cost,
		compressionRatio: opts.CompressionRatio,
		createdAt:        now,
		ttl:              ttl,
		lastAccess:       now,
	}
	c.currentSize += size
	return nil
}

// GetOrCompute returns the payload for key, computing it via fn on a miss.
// Concurrent callers for the same missing key share a single computation.
func (c *CostAwareCache) GetOrCompute(ctx context.Context, key string, category types.ContentCategory, opts SetOptions, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Another caller may have stored the value while we queued.
		if data, ok := c.Get(key); ok {
			return data, nil
		}
		data, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, data, category, opts); err != nil {
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Delete removes key if present. Idempotent.
func (c *CostAwareCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(e, false)
	return true
}

// InvalidateCategory removes every entry tagged with the category and
// returns the number removed. Used when the upstream source for that
// category is known to have changed.
func (c *CostAwareCache) InvalidateCategory(category types.ContentCategory) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*costEntry
	for _, e := range c.items {
		if e.category == category {
			matched = append(matched, e)
		}
	}
	for _, e := range matched {
		c.removeLocked(e, false)
	}
	return len(matched)
}

// Clear removes all entries.
func (c *CostAwareCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*costEntry)
	c.currentSize = 0
}

// Len returns the number of entries.
func (c *CostAwareCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Size returns the current byte size.
func (c *CostAwareCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Stats returns a snapshot of cache statistics.
func (c *CostAwareCache) Stats() types.CacheStats {
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

// Sweep removes all expired entries immediately and returns the bytes
// reclaimed. It takes the same lock as scoring eviction, so the two never
// interleave on an entry.
func (c *CostAwareCache) Sweep() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Close stops the background sweep. The cache remains usable.
func (c *CostAwareCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.stopCh)
}

// effectiveTTL resolves the TTL for an entry: explicit override first, then
// the category base scaled by any multiplier hint, then the default.
func (c *CostAwareCache) effectiveTTL(category types.ContentCategory, hint TTLHint) time.Duration {
	if hint.Override > 0 {
		return hint.Override
	}
	ttl, ok := c.config.CategoryTTLs[category]
	if !ok {
		ttl = c.config.DefaultTTL
	}
	if hint.Multiplier > 0 {
		ttl = time.Duration(float64(ttl) * hint.Multiplier)
	}
	return ttl
}

// score rates how evictable an entry is: higher means evicted sooner. The
// factors are the entry's age relative to its own TTL, the inverse of its
// access count, the inverse of its regeneration cost, and its size in MB.
func (c *CostAwareCache) score(e *costEntry, now time.Time) float64 {
	var ageRatio float64
	if e.ttl > 0 {
		ageRatio = float64(now.Sub(e.createdAt)) / float64(e.ttl)
	}
	rarity := 1.0 / float64(e.accessCount+1)
	cheapness := 1.0 / (e.cost + costEpsilon)
	bulk := float64(len(e.data)) / (1024.0 * 1024.0)

	w := c.config.Weights
	return w.Age*ageRatio + w.Rarity*rarity + w.Cost*cheapness + w.Size*bulk
}

// evictByScoreLocked evicts highest-scoring entries until an incoming entry
// of the given size and count fits both budgets. Caller holds the write
// lock.
func (c *CostAwareCache) evictByScoreLocked(incomingSize int64, incomingCount int) {
	if c.currentSize+incomingSize <= c.config.MaxSize &&
		len(c.items)+incomingCount <= c.config.MaxEntries {
		return
	}

	now := c.clock.Now()
	type scored struct {
		entry *costEntry
		score float64
	}
	candidates := make([]scored, 0, len(c.items))
	for _, e := range c.items {
		candidates = append(candidates, scored{entry: e, score: c.score(e, now)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	for _, cand := range candidates {
		if c.currentSize+incomingSize <= c.config.MaxSize &&
			len(c.items)+incomingCount <= c.config.MaxEntries {
			break
		}
		c.removeLocked(cand.entry, false)
		c.stats.Evictions++
	}
}

func (c *CostAwareCache) removeLocked(e *costEntry, expired bool) {
	if _, ok := c.items[e.key]; !ok {
		return
	}
	delete(c.items, e.key)
	c.currentSize -= int64(len(e.data))
	if expired {
		c.stats.Expirations++
	}
}

func (c *CostAwareCache) sweepLocked() int64 {
	now := c.clock.Now()
	var expired []*costEntry
	for _, e := range c.items {
		if e.expired(now) {
			expired = append(expired, e)
		}
	}

	var reclaimed int64
	for _, e := range expired {
		reclaimed += int64(len(e.data))
		c.removeLocked(e, true)
	}
	return reclaimed
}

func (c *CostAwareCache) sweepLoop() {
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
				c.logger.Debug("cost-aware sweep reclaimed space", "bytes", reclaimed)
			}
		}
	}
}
