package cache

import (
	"sort"
	"sync"

	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// StatsCollector aggregates statistics from any number of registered cache
// instances for observability. It does not own the caches; snapshots read
// live stats at call time.
type StatsCollector struct {
	mu        sync.RWMutex
	providers map[string]types.StatsProvider
}

// NewStatsCollector creates an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		providers: make(map[string]types.StatsProvider),
	}
}

// Register adds a named cache instance. Re-registering a name replaces the
// previous provider.
func (sc *StatsCollector) Register(name string, provider types.StatsProvider) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.providers[name] = provider
}

// Unregister removes a named cache instance.
func (sc *StatsCollector) Unregister(name string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.providers, name)
}

// Names returns the registered cache names, sorted.
func (sc *StatsCollector) Names() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	names := make([]string, 0, len(sc.providers))
	for name := range sc.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current stats of every registered cache, keyed by
// name.
func (sc *StatsCollector) Snapshot() map[string]types.CacheStats {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make(map[string]types.CacheStats, len(sc.providers))
	for name, provider := range sc.providers {
		out[name] = provider.Stats()
	}
	return out
}

// Aggregate merges all registered caches into one combined view.
func (sc *StatsCollector) Aggregate() types.CacheStats {
	snapshot := sc.Snapshot()

	var combined types.CacheStats
	for _, stats := range snapshot {
		combined.Hits += stats.Hits
		combined.Misses += stats.Misses
		combined.Evictions += stats.Evictions
		combined.Expirations += stats.Expirations
		combined.Entries += stats.Entries
		combined.Size += stats.Size
		combined.Capacity += stats.Capacity
	}
	if total := combined.Hits + combined.Misses; total > 0 {
		combined.HitRate = float64(combined.Hits) / float64(total)
	}
	if combined.Capacity > 0 {
		combined.Utilization = float64(combined.Size) / float64(combined.Capacity)
	}
	return combined
}
