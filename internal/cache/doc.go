/*
Package cache provides the multi-tier adaptive cache for weathercache.

It stores, expires, evicts, and routes computed or fetched values across an
in-memory tier and a persistent disk tier, with a cost-aware variant for
expensive-to-regenerate content such as AI responses, rendered charts, and
external API results.

# Architecture

	┌─────────────────────────────────────────────┐
	│              Application                    │
	│     (weather fetchers, renderers, AI)       │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│             Manager (tiered)                │  ← This Package
	│   routes by policy, promotes disk hits      │
	└─────────────────────────────────────────────┘
	          │                        │
	┌─────────────────────┐  ┌─────────────────────┐
	│    BoundedCache     │  │   PersistentCache   │
	│   (memory, fast)    │  │   (disk, durable)   │
	│  • TTL + LRU        │  │  • zstd compression │
	│  • byte/entry caps  │  │  • JSON index       │
	│  • background sweep │  │  • self-healing     │
	└─────────────────────┘  └─────────────────────┘

CostAwareCache sits beside the tiers for payloads with a regeneration cost:
its eviction ranks entries by a weighted score of relative age, access
rarity, regeneration cheapness, and size, so a rarely used but expensive AI
response outlives a cheap, stale forecast of the same age.

WeakRefCache covers the remaining case: caching handles to large,
externally-owned objects (rendered widgets, native resources) without
extending their lifetime.

# Concurrency

Every cache owns one coarse lock over its entry map and size accounting.
The lock is never held across serialization, compression, disk I/O, or
factory execution; long-running work happens outside and the lock is
re-acquired to commit. Each cache runs one background goroutine for its
periodic expiry sweep, stopped by Close.

GetOrSet on the bounded, persistent, and tiered caches is deliberately
relaxed: concurrent misses for one key may each run the factory. Only
CostAwareCache.GetOrCompute coalesces concurrent computations, because
duplicate recomputation there carries a real cost.

# Usage

	mem := cache.NewBoundedCache(&cache.BoundedConfig{
		MaxEntries: 1000,
		MaxSize:    64 * 1024 * 1024,
		DefaultTTL: 5 * time.Minute,
	})
	disk, err := cache.NewPersistentCache(&cache.PersistentConfig{
		Directory: "/var/cache/weathercache",
		MaxSize:   1024 * 1024 * 1024,
	})
	if err != nil {
		log.Fatal(err)
	}
	mgr, err := cache.NewManager(mem, disk, &cache.TieredConfig{
		MemorySizeThreshold: 64 * 1024,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Close()

	payload, err := mgr.GetOrSet("weather:paris", fetchParis, types.TierAuto)
*/
package cache
