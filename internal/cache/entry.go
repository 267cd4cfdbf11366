package cache

import (
	"container/list"
	"reflect"
	"time"

	"github.com/StrayDogSyn/weathercache/pkg/types"
)

const (
	// defaultSizeEstimate is charged for values whose size cannot be
	// determined.
	defaultSizeEstimate = 256

	// estimateSampleLimit caps how many elements of a composite value the
	// estimator inspects before extrapolating.
	estimateSampleLimit = 8

	// estimateMaxDepth bounds recursion into nested structures.
	estimateMaxDepth = 4
)

// entry is a single cached value plus its bookkeeping metadata.
type entry struct {
	key         string
	value       interface{}
	size        int64
	createdAt   time.Time
	ttl         time.Duration
	accessCount int64
	lastAccess  time.Time
	element     *list.Element
}

// expired reports whether the entry's TTL has elapsed at the given time.
// A zero TTL means the entry never expires.
func (e *entry) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) > e.ttl
}

// touch records a successful read.
func (e *entry) touch(now time.Time) {
	e.accessCount++
	e.lastAccess = now
}

// EstimateSize produces a best-effort byte-size estimate for a value. Values
// implementing types.SizeHint report their own size. Strings and byte slices
// use their length; composite values are sampled (first few elements) and
// extrapolated to bound estimation cost. Anything unrecognized falls back to
// a constant default.
func EstimateSize(v interface{}) int64 {
	if v == nil {
		return 0
	}
	if hint, ok := v.(types.SizeHint); ok {
		return hint.SizeBytes()
	}
	switch val := v.(type) {
	case string:
		return int64(len(val))
	case []byte:
		return int64(len(val))
	}
	return estimateReflect(reflect.ValueOf(v), estimateMaxDepth)
}

func estimateReflect(rv reflect.Value, depth int) int64 {
	if depth <= 0 || !rv.IsValid() {
		return defaultSizeEstimate
	}

	switch rv.Kind() {
	case reflect.String:
		return int64(rv.Len())
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64,
		reflect.Float64, reflect.Complex64, reflect.Uintptr:
		return 8
	case reflect.Complex128:
		return 16
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return 8
		}
		return 8 + estimateReflect(rv.Elem(), depth-1)
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		if n == 0 {
			return 24
		}
		sample := n
		if sample > estimateSampleLimit {
			sample = estimateSampleLimit
		}
		var sum int64
		for i := 0; i < sample; i++ {
			sum += estimateReflect(rv.Index(i), depth-1)
		}
		// Extrapolate from the sampled prefix.
		return 24 + sum*int64(n)/int64(sample)
	case reflect.Map:
		n := rv.Len()
		if n == 0 {
			return 48
		}
		sample := 0
		var sum int64
		iter := rv.MapRange()
		for iter.Next() && sample < estimateSampleLimit {
			sum += estimateReflect(iter.Key(), depth-1)
			sum += estimateReflect(iter.Value(), depth-1)
			sample++
		}
		return 48 + sum*int64(n)/int64(sample)
	case reflect.Struct:
		var sum int64
		fields := rv.NumField()
		if fields > estimateSampleLimit {
			fields = estimateSampleLimit
		}
		for i := 0; i < fields; i++ {
			sum += estimateReflect(rv.Field(i), depth-1)
		}
		return sum
	default:
		return defaultSizeEstimate
	}
}
