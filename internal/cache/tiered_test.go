package cache

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/StrayDogSyn/weathercache/pkg/types"
)

func newTestManager(t *testing.T, config *TieredConfig) *Manager {
	t.Helper()

	memory := NewBoundedCache(&BoundedConfig{MaxEntries: 100})
	disk, err := NewPersistentCache(&PersistentConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatalf("NewPersistentCache failed: %v", err)
	}

	m, err := NewManager(memory, disk, config)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManagerRequiresBothTiers(t *testing.T) {
	if _, err := NewManager(nil, nil, nil); err == nil {
		t.Error("expected error for missing tiers")
	}
}

func TestManagerRoundTrip(t *testing.T) {
	m := newTestManager(t, nil)

	payload := []byte(`{"temp":21}`)
	if err := m.Set("weather:paris", payload, types.TierBoth); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := m.Get("weather:paris")
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: %s", got)
	}
}

func TestManagerPromotion(t *testing.T) {
	m := newTestManager(t, nil)

	if err := m.Set("forecast:paris", []byte("week of sun"), types.TierDiskOnly); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// First read is served from disk and promotes into memory.
	if _, ok := m.Get("forecast:paris"); !ok {
		t.Fatal("expected disk hit")
	}
	stats := m.Stats()
	if stats.DiskTier.Hits != 1 {
		t.Errorf("expected 1 disk hit, got %d", stats.DiskTier.Hits)
	}
	if stats.MemoryTier.Hits != 0 {
		t.Errorf("expected no memory hit yet, got %d", stats.MemoryTier.Hits)
	}

	// Second read must be served from the memory tier.
	if _, ok := m.Get("forecast:paris"); !ok {
		t.Fatal("expected hit after promotion")
	}
	stats = m.Stats()
	if stats.MemoryTier.Hits != 1 {
		t.Errorf("promoted entry should hit memory, got %d memory hits", stats.MemoryTier.Hits)
	}
	if stats.DiskTier.Hits != 1 {
		t.Errorf("disk should not be consulted again, got %d disk hits", stats.DiskTier.Hits)
	}
}

func TestManagerAutoPlacement(t *testing.T) {
	m := newTestManager(t, &TieredConfig{MemorySizeThreshold: 1024})

	// Small payload stays memory-only.
	if err := m.Set("small", []byte("tiny"), types.TierAuto); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := m.disk.Get("small"); ok {
		t.Error("small payload should not reach the disk tier")
	}
	if _, ok := m.memory.Get("small"); !ok {
		t.Error("small payload should be in the memory tier")
	}

	// Large payload goes to both tiers.
	if err := m.Set("large", make([]byte, 4096), types.TierAuto); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := m.disk.Get("large"); !ok {
		t.Error("large payload should reach the disk tier")
	}
	if _, ok := m.memory.Get("large"); !ok {
		t.Error("large payload should also be in the memory tier")
	}
}

func TestManagerConfiguredLevelWins(t *testing.T) {
	m := newTestManager(t, &TieredConfig{Level: types.TierDiskOnly})

	if err := m.Set("k", []byte("v"), types.TierAuto); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := m.memory.Get("k"); ok {
		t.Error("disk-only policy must keep the memory tier empty")
	}
	if _, ok := m.disk.Get("k"); !ok {
		t.Error("disk-only policy should write the disk tier")
	}
}

func TestManagerForeignMemoryValue(t *testing.T) {
	m := newTestManager(t, nil)

	// A caller sharing the memory tier stores a non-byte value under a key
	// the manager also uses. The manager must not panic and must fall
	// through to the disk tier.
	m.disk.Set("k", []byte("from disk"), 0)
	m.memory.Set("k", 42, 0)

	got, ok := m.Get("k")
	if !ok {
		t.Fatal("expected disk fallthrough hit")
	}
	if string(got) != "from disk" {
		t.Errorf("unexpected payload: %s", got)
	}
}

func TestManagerGetOrSet(t *testing.T) {
	m := newTestManager(t, nil)

	calls := 0
	data, err := m.GetOrSet("k", func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}, types.TierBoth)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if string(data) != "computed" {
		t.Errorf("unexpected payload: %s", data)
	}

	if _, err := m.GetOrSet("k", func() ([]byte, error) {
		calls++
		return nil, nil
	}, types.TierBoth); err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("factory should run once, ran %d times", calls)
	}
}

func TestManagerGetOrSetError(t *testing.T) {
	m := newTestManager(t, nil)

	wantErr := errors.New("provider down")
	_, err := m.GetOrSet("k", func() ([]byte, error) { return nil, wantErr }, types.TierBoth)
	if !errors.Is(err, wantErr) {
		t.Errorf("factory error should propagate, got %v", err)
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("k", []byte("v"), types.TierBoth)
	if !m.Delete("k") {
		t.Error("Delete should report true")
	}
	if _, ok := m.Get("k"); ok {
		t.Error("deleted key must miss on both tiers")
	}
	if m.Delete("k") {
		t.Error("Delete should be idempotent")
	}
}

func TestManagerInvalidatePattern(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("weather:paris", []byte("a"), types.TierBoth)
	m.Set("weather:tokyo", []byte("b"), types.TierMemoryOnly)
	m.Set("forecast:paris", []byte("c"), types.TierBoth)

	n, err := m.InvalidatePattern("weather:*")
	if err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}
	// paris counts in both tiers, tokyo in memory only.
	if n != 3 {
		t.Errorf("expected 3 removals across tiers, got %d", n)
	}
	if _, ok := m.Get("weather:paris"); ok {
		t.Error("invalidated key must miss")
	}
	if _, ok := m.Get("forecast:paris"); !ok {
		t.Error("non-matching key should survive")
	}
}

func TestManagerStatsConsistency(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("hit", []byte("v"), types.TierBoth)
	m.Get("hit")
	m.Get("miss1")
	m.Get("miss2")

	stats := m.Stats()
	for name, tier := range map[string]TierStats{
		"memory":  stats.MemoryTier,
		"disk":    stats.DiskTier,
		"overall": stats.Overall,
	} {
		if tier.Hits+tier.Misses != tier.Requests {
			t.Errorf("%s tier: hits(%d) + misses(%d) != requests(%d)",
				name, tier.Hits, tier.Misses, tier.Requests)
		}
	}
	if stats.Overall.Requests != 3 {
		t.Errorf("expected 3 overall requests, got %d", stats.Overall.Requests)
	}
	if stats.Overall.Hits != 1 {
		t.Errorf("expected 1 overall hit, got %d", stats.Overall.Hits)
	}
}

func TestManagerOptimize(t *testing.T) {
	memory := NewBoundedCache(&BoundedConfig{})
	clock := newFakeClock()
	disk, err := NewPersistentCache(&PersistentConfig{Directory: t.TempDir(), Clock: clock})
	if err != nil {
		t.Fatalf("NewPersistentCache failed: %v", err)
	}
	m, err := NewManager(memory, disk, &TieredConfig{DiskTTL: time.Minute})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	m.Set("stale", []byte("old data"), types.TierDiskOnly)
	clock.Advance(10 * time.Minute)

	result := m.Optimize()
	if result.DiskReclaimed == 0 {
		t.Error("expected disk bytes reclaimed")
	}
	if disk.Len() != 0 {
		t.Errorf("expired disk entry should be gone, len = %d", disk.Len())
	}
}

func TestManagerClear(t *testing.T) {
	m := newTestManager(t, nil)

	m.Set("a", []byte("1"), types.TierBoth)
	m.Set("b", []byte("2"), types.TierMemoryOnly)
	m.Clear()

	if m.memory.Len() != 0 || m.disk.Len() != 0 {
		t.Error("Clear should empty both tiers")
	}
}
