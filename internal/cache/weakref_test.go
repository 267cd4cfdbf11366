package cache

import (
	"testing"

	cacheerrors "github.com/StrayDogSyn/weathercache/pkg/errors"
)

type renderedChart struct {
	Name   string
	Pixels []byte
}

func TestWeakRefSetGet(t *testing.T) {
	c := NewWeakRefCache[renderedChart]()

	chart := &renderedChart{Name: "temp-trend", Pixels: make([]byte, 1024)}
	if err := c.Set("chart:paris", chart, nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get("chart:paris")
	if !ok {
		t.Fatal("expected hit while a strong reference is held")
	}
	if got != chart {
		t.Error("expected the identical pointer back")
	}
	if _, ok := c.Get("chart:absent"); ok {
		t.Error("expected miss for absent key")
	}

	// Keep the strong reference live past the Get above.
	_ = chart.Name
}

func TestWeakRefNilPointer(t *testing.T) {
	c := NewWeakRefCache[renderedChart]()

	err := c.Set("chart:nil", nil, nil)
	if !cacheerrors.IsCode(err, cacheerrors.ErrCodeNotObservable) {
		t.Errorf("expected not-observable error, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("nil pointer must not be stored")
	}
}

func TestWeakRefDelete(t *testing.T) {
	c := NewWeakRefCache[renderedChart]()

	chart := &renderedChart{Name: "wind"}
	c.Set("chart:wind", chart, nil)

	if !c.Delete("chart:wind") {
		t.Error("Delete should report true for a present key")
	}
	if c.Delete("chart:wind") {
		t.Error("Delete should be idempotent")
	}
	_ = chart.Name
}

func TestWeakRefClear(t *testing.T) {
	c := NewWeakRefCache[renderedChart]()

	a := &renderedChart{Name: "a"}
	b := &renderedChart{Name: "b"}
	c.Set("a", a, nil)
	c.Set("b", b, nil)

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Clear should empty the cache, len = %d", c.Len())
	}
	_, _ = a.Name, b.Name
}

func TestWeakRefStats(t *testing.T) {
	c := NewWeakRefCache[renderedChart]()

	chart := &renderedChart{Name: "pressure"}
	c.Set("chart:pressure", chart, nil)

	c.Get("chart:pressure")
	c.Get("chart:absent")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	_ = chart.Name
}

// Reclamation-dependent behavior (entries going dead after the last strong
// reference drops, cleanup callbacks firing) is intentionally not asserted:
// the runtime gives no deterministic reclamation point to test against.
