package cache

import (
	"log/slog"
	"sync"
	"time"

	cacheerrors "github.com/StrayDogSyn/weathercache/pkg/errors"
	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// TieredConfig configures a Manager.
type TieredConfig struct {
	// Level is the default routing policy for writes.
	Level types.TierLevel `yaml:"level"`
	// MemoryTTL and DiskTTL are the per-tier entry lifetimes. Disk entries
	// commonly outlive their memory counterparts.
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
	// MemorySizeThreshold drives TierAuto placement: payloads at or below
	// it stay memory-only, larger payloads are written to both tiers.
	MemorySizeThreshold int64 `yaml:"memory_size_threshold"`

	Logger *slog.Logger `yaml:"-"`
}

// TierStats reports the manager-level routing counters for one tier.
type TierStats struct {
	Requests uint64  `json:"requests"`
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

// TieredStats combines routing counters with the underlying tier stats.
type TieredStats struct {
	MemoryTier TierStats        `json:"memory_tier"`
	DiskTier   TierStats        `json:"disk_tier"`
	Overall    TierStats        `json:"overall"`
	Memory     types.CacheStats `json:"memory"`
	Disk       types.CacheStats `json:"disk"`
}

// OptimizeResult summarizes the space reclaimed by Optimize.
type OptimizeResult struct {
	MemoryReclaimed int64 `json:"memory_reclaimed"`
	DiskReclaimed   int64 `json:"disk_reclaimed"`
}

// Manager routes keys across a memory tier and a persistent disk tier.
// Reads check memory first and promote disk hits into memory; writes are
// placed per the configured policy, with TierAuto deciding by payload size.
// Payloads are opaque byte slices; callers serialize values before handing
// them to the manager.
type Manager struct {
	memory *BoundedCache
	disk   *PersistentCache
	config *TieredConfig
	logger *slog.Logger

	mu        sync.Mutex
	memStats  TierStats
	diskStats TierStats
	totalGets uint64
	totalHits uint64
}

// NewManager creates a tiered cache manager over the given memory and disk
// tiers. Both tiers are required; the routing policy decides which are used.
// Construct one manager per composition root and pass it to consumers.
func NewManager(memory *BoundedCache, disk *PersistentCache, config *TieredConfig) (*Manager, error) {
	if memory == nil || disk == nil {
		return nil, cacheerrors.New(cacheerrors.ErrCodeInvalidConfig, "both memory and disk tiers are required").
			WithComponent("tiered")
	}
	if config == nil {
		config = &TieredConfig{}
	}
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = 5 * time.Minute
	}
	if config.DiskTTL <= 0 {
		config.DiskTTL = time.Hour
	}
	if config.MemorySizeThreshold <= 0 {
		config.MemorySizeThreshold = 64 * 1024 // 64KB
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		memory: memory,
		disk:   disk,
		config: config,
		logger: logger,
	}, nil
}

// Get returns the payload for key, consulting the memory tier first. A disk
// hit is promoted into the memory tier under the memory TTL so the next
// lookup is served without a disk read.
func (m *Manager) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	m.totalGets++
	m.mu.Unlock()

	if m.config.Level != types.TierDiskOnly {
		if v, ok := m.memory.Get(key); ok {
			// A shared memory tier may hold a foreign value under a
			// colliding key; treat anything but bytes as a miss.
			if data, ok := v.([]byte); ok {
				m.recordTier(&m.memStats, true)
				return data, true
			}
		}
		m.recordTier(&m.memStats, false)
	}

	if m.config.Level != types.TierMemoryOnly {
		if data, ok := m.disk.Get(key); ok {
			m.recordTier(&m.diskStats, true)
			if m.config.Level != types.TierDiskOnly {
				m.memory.Set(key, data, m.config.MemoryTTL)
			}
			return data, true
		}
		m.recordTier(&m.diskStats, false)
	}

	return nil, false
}

// Set stores the payload under key. A TierAuto level resolves first to the
// manager's configured policy, then by size against the memory threshold:
// small payloads stay memory-only, large ones go to both tiers so an
// eviction from memory does not lose an expensive value.
func (m *Manager) Set(key string, data []byte, level types.TierLevel) error {
	level = m.resolveLevel(data, level)

	if level == types.TierMemoryOnly || level == types.TierBoth {
		m.memory.Set(key, data, m.config.MemoryTTL)
	}
	if level == types.TierDiskOnly || level == types.TierBoth {
		if err := m.disk.Set(key, data, m.config.DiskTTL); err != nil {
			if level == types.TierDiskOnly {
				return err
			}
			// The memory copy still serves reads; degrade with a warning.
			m.logger.Warn("disk tier write failed", "key", key, "error", err)
		}
	}
	return nil
}

// GetOrSet returns the payload for key, computing and storing it via
// factory on a total miss. Concurrent callers racing on the same missing
// key may each invoke the factory; there is no single-flight guarantee at
// this layer.
func (m *Manager) GetOrSet(key string, factory func() ([]byte, error), level types.TierLevel) ([]byte, error) {
	if data, ok := m.Get(key); ok {
		return data, nil
	}
	data, err := factory()
	if err != nil {
		return nil, err
	}
	if err := m.Set(key, data, level); err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) bool {
	memDeleted := m.memory.Delete(key)
	diskDeleted := m.disk.Delete(key)
	return memDeleted || diskDeleted
}

// Clear empties both tiers.
func (m *Manager) Clear() {
	m.memory.Clear()
	m.disk.Clear()
}

// InvalidatePattern deletes all matching keys from both tiers and returns
// the number of entries removed (an entry present in both tiers counts
// once per tier).
func (m *Manager) InvalidatePattern(pattern string) (int, error) {
	memCount, err := m.memory.InvalidatePattern(pattern)
	if err != nil {
		return 0, err
	}
	diskCount, err := m.disk.InvalidatePattern(pattern)
	if err != nil {
		return memCount, err
	}
	return memCount + diskCount, nil
}

// Stats returns routing counters per tier plus the underlying tier stats.
// Within each tier, hits plus misses equals the requests routed to it.
func (m *Manager) Stats() TieredStats {
	m.mu.Lock()
	memTier := finishTierStats(m.memStats)
	diskTier := finishTierStats(m.diskStats)
	overall := TierStats{
		Requests: m.totalGets,
		Hits:     m.totalHits,
		Misses:   m.totalGets - m.totalHits,
	}
	m.mu.Unlock()

	if overall.Requests > 0 {
		overall.HitRate = float64(overall.Hits) / float64(overall.Requests)
	}

	return TieredStats{
		MemoryTier: memTier,
		DiskTier:   diskTier,
		Overall:    overall,
		Memory:     m.memory.Stats(),
		Disk:       m.disk.Stats(),
	}
}

// Optimize runs tier-specific housekeeping: an expiry sweep on the memory
// tier, and a sweep plus index compaction on the disk tier.
func (m *Manager) Optimize() OptimizeResult {
	return OptimizeResult{
		MemoryReclaimed: m.memory.Sweep(),
		DiskReclaimed:   m.disk.Optimize(),
	}
}

// Close shuts down both tiers.
func (m *Manager) Close() error {
	m.memory.Close()
	return m.disk.Close()
}

func (m *Manager) resolveLevel(data []byte, level types.TierLevel) types.TierLevel {
	if level == types.TierAuto {
		level = m.config.Level
	}
	if level == types.TierAuto {
		if int64(len(data)) <= m.config.MemorySizeThreshold {
			return types.TierMemoryOnly
		}
		return types.TierBoth
	}
	return level
}

func (m *Manager) recordTier(ts *TierStats, hit bool) {
	m.mu.Lock()
	ts.Requests++
	if hit {
		ts.Hits++
		m.totalHits++
	} else {
		ts.Misses++
	}
	m.mu.Unlock()
}

func finishTierStats(ts TierStats) TierStats {
	if ts.Requests > 0 {
		ts.HitRate = float64(ts.Hits) / float64(ts.Requests)
	}
	return ts
}
