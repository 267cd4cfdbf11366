package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock shared by the cache tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestBounded(t *testing.T, config *BoundedConfig) *BoundedCache {
	t.Helper()
	c := NewBoundedCache(config)
	t.Cleanup(c.Close)
	return c
}

func TestBoundedSetGet(t *testing.T) {
	c := newTestBounded(t, nil)

	if !c.Set("weather:paris", "sunny, 21C", 0) {
		t.Fatal("Set should accept a small entry")
	}

	v, ok := c.Get("weather:paris")
	if !ok {
		t.Fatal("expected hit")
	}
	if v.(string) != "sunny, 21C" {
		t.Errorf("unexpected value: %v", v)
	}

	if _, ok := c.Get("weather:tokyo"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestBoundedExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestBounded(t, &BoundedConfig{Clock: clock})

	c.Set("weather:paris", "sunny", 10*time.Minute)

	clock.Advance(5 * time.Minute)
	if _, ok := c.Get("weather:paris"); !ok {
		t.Fatal("entry should still be live at half TTL")
	}

	clock.Advance(6 * time.Minute)
	if _, ok := c.Get("weather:paris"); ok {
		t.Fatal("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed on access, len = %d", c.Len())
	}

	stats := c.Stats()
	if stats.Expirations != 1 {
		t.Errorf("expected 1 expiration, got %d", stats.Expirations)
	}
	if stats.Misses != 1 {
		t.Errorf("expired access should count as a miss, got %d misses", stats.Misses)
	}
}

func TestBoundedDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestBounded(t, &BoundedConfig{DefaultTTL: time.Minute, Clock: clock})

	c.Set("k", "v", 0) // non-positive selects the default

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should have expired under the default TTL")
	}
}

func TestBoundedLRUEviction(t *testing.T) {
	c := newTestBounded(t, &BoundedConfig{MaxEntries: 3})

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	// Touch "a" so "b" becomes the least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}

	c.Set("d", 4, 0)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s should have survived eviction", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("expected 1 eviction, got %d", got)
	}
}

func TestBoundedByteBudget(t *testing.T) {
	// 10-entry, 1MB cache receiving 11 entries of ~150KB each must stay
	// within both budgets with no error.
	c := newTestBounded(t, &BoundedConfig{MaxEntries: 10, MaxSize: 1024 * 1024})

	payload := make([]byte, 150*1024)
	for i := 0; i < 11; i++ {
		if !c.Set(fmt.Sprintf("chart:%d", i), payload, 0) {
			t.Fatalf("Set %d should succeed", i)
		}
		if c.Size() > 1024*1024 {
			t.Fatalf("byte budget violated after insert %d: %d", i, c.Size())
		}
		if c.Len() > 10 {
			t.Fatalf("entry budget violated after insert %d: %d", i, c.Len())
		}
	}

	if c.Stats().Evictions == 0 {
		t.Error("expected evictions under budget pressure")
	}
}

func TestBoundedOversizeRejected(t *testing.T) {
	c := newTestBounded(t, &BoundedConfig{MaxSize: 1024})

	if c.Set("huge", make([]byte, 4096), 0) {
		t.Fatal("entry larger than the whole budget should be rejected")
	}
	if c.Len() != 0 {
		t.Error("rejected entry must not be stored")
	}
}

func TestBoundedReplaceAccounting(t *testing.T) {
	c := newTestBounded(t, &BoundedConfig{MaxSize: 10 * 1024})

	c.Set("k", make([]byte, 4096), 0)
	c.Set("k", make([]byte, 1024), 0)

	if c.Len() != 1 {
		t.Errorf("replace should keep a single entry, len = %d", c.Len())
	}
	if c.Size() != 1024 {
		t.Errorf("size should reflect the replacement only, got %d", c.Size())
	}
}

func TestBoundedDelete(t *testing.T) {
	c := newTestBounded(t, nil)

	c.Set("k", "v", 0)
	if !c.Delete("k") {
		t.Error("Delete should report true for a present key")
	}
	if c.Delete("k") {
		t.Error("Delete should be idempotent")
	}
	if c.Size() != 0 {
		t.Errorf("size should drop to zero, got %d", c.Size())
	}
}

func TestBoundedGetOrSet(t *testing.T) {
	c := newTestBounded(t, nil)

	calls := 0
	factory := func() (interface{}, error) {
		calls++
		return "computed", nil
	}

	v, err := c.GetOrSet("k", factory, 0)
	if err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if v.(string) != "computed" {
		t.Errorf("unexpected value: %v", v)
	}

	if _, err := c.GetOrSet("k", factory, 0); err != nil {
		t.Fatalf("GetOrSet failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("factory should run once, ran %d times", calls)
	}
}

func TestBoundedGetOrSetError(t *testing.T) {
	c := newTestBounded(t, nil)

	wantErr := errors.New("upstream unavailable")
	_, err := c.GetOrSet("k", func() (interface{}, error) { return nil, wantErr }, 0)
	if !errors.Is(err, wantErr) {
		t.Errorf("factory error should propagate, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("failed factory must not store anything")
	}
}

func TestBoundedInvalidatePattern(t *testing.T) {
	c := newTestBounded(t, nil)

	c.Set("weather:paris", 1, 0)
	c.Set("weather:tokyo", 2, 0)
	c.Set("forecast:paris", 3, 0)

	n, err := c.InvalidatePattern("weather:*")
	if err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 invalidations, got %d", n)
	}
	if _, ok := c.Get("forecast:paris"); !ok {
		t.Error("non-matching key should survive")
	}
}

func TestBoundedInvalidatePatternBad(t *testing.T) {
	c := newTestBounded(t, nil)
	c.Set("k", 1, 0)

	if _, err := c.InvalidatePattern("[invalid"); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestBoundedClear(t *testing.T) {
	c := newTestBounded(t, nil)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Clear()

	if c.Len() != 0 || c.Size() != 0 {
		t.Errorf("Clear should empty the cache, len = %d size = %d", c.Len(), c.Size())
	}
}

func TestBoundedResize(t *testing.T) {
	c := newTestBounded(t, &BoundedConfig{MaxSize: 10 * 1024})

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), make([]byte, 1024), 0)
	}

	c.Resize(2 * 1024)
	if c.Size() > 2*1024 {
		t.Errorf("Resize should evict down to the new budget, size = %d", c.Size())
	}
	if got := c.Stats().Capacity; got != 2*1024 {
		t.Errorf("capacity should track the new budget, got %d", got)
	}
}

func TestBoundedSweep(t *testing.T) {
	clock := newFakeClock()
	c := newTestBounded(t, &BoundedConfig{Clock: clock})

	c.Set("short", make([]byte, 100), time.Minute)
	c.Set("long", make([]byte, 100), time.Hour)

	clock.Advance(10 * time.Minute)
	reclaimed := c.Sweep()

	if reclaimed == 0 {
		t.Error("expected bytes reclaimed from the expired entry")
	}
	if c.Len() != 1 {
		t.Errorf("only the live entry should remain, len = %d", c.Len())
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("unexpired entry should survive the sweep")
	}
}

func TestBoundedOnEvict(t *testing.T) {
	var evicted []string
	c := newTestBounded(t, &BoundedConfig{
		MaxEntries: 2,
		OnEvict:    func(key string, _ interface{}) { evicted = append(evicted, key) },
	})

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	if len(evicted) != 1 || evicted[0] != "a" {
		t.Errorf("expected OnEvict for a, got %v", evicted)
	}
}

func TestBoundedStats(t *testing.T) {
	c := newTestBounded(t, nil)

	c.Set("k", "v", 0)
	c.Get("k")
	c.Get("k")
	c.Get("absent")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("unexpected hit rate %f", stats.HitRate)
	}
	if stats.Requests() != 3 {
		t.Errorf("expected 3 requests, got %d", stats.Requests())
	}
}

func TestBoundedConcurrentAccess(t *testing.T) {
	c := newTestBounded(t, &BoundedConfig{MaxEntries: 100})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%50)
				c.Set(key, i, 0)
				c.Get(key)
				if i%10 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("entry budget violated: %d", c.Len())
	}
}

func TestEstimateSize(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  int64
	}{
		{"nil", nil, 0},
		{"string", "hello", 5},
		{"bytes", make([]byte, 1000), 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateSize(tt.value); got != tt.want {
				t.Errorf("EstimateSize = %d, want %d", got, tt.want)
			}
		})
	}

	// Composite values get a positive, bounded estimate.
	type report struct {
		City string
		Temp float64
	}
	if got := EstimateSize(report{City: "paris", Temp: 21.5}); got <= 0 {
		t.Errorf("struct estimate should be positive, got %d", got)
	}
	if got := EstimateSize(map[string]int{"a": 1, "b": 2}); got <= 0 {
		t.Errorf("map estimate should be positive, got %d", got)
	}
}

type sizedValue struct{ n int64 }

func (s sizedValue) SizeBytes() int64 { return s.n }

func TestEstimateSizeHint(t *testing.T) {
	if got := EstimateSize(sizedValue{n: 12345}); got != 12345 {
		t.Errorf("SizeHint should win, got %d", got)
	}
}
