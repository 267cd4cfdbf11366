package types

import "time"

// Store defines the key/value surface every cache tier implements.
// A false second return from Get is a miss; misses are not errors.
type Store interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) bool
	Delete(key string) bool
	Clear()
	Len() int
	Size() int64
	Stats() CacheStats
}

// StatsProvider is implemented by anything that can report cache statistics.
// The stats collector and the Prometheus exporter consume this.
type StatsProvider interface {
	Stats() CacheStats
}

// Sweeper is implemented by caches that support an on-demand expiry pass.
// Sweep returns the number of bytes reclaimed.
type Sweeper interface {
	Sweep() int64
}

// SizeEstimator produces a best-effort byte-size estimate for a value.
type SizeEstimator func(v interface{}) int64
