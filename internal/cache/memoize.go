package cache

import "time"

// Memoize wraps fn so its results are served from the given cache. keyFn
// derives the cache key from the argument. The wrapper inherits the cache's
// relaxed concurrency guarantee: concurrent calls for the same uncached key
// may each invoke fn.
func Memoize[A any, V any](c *BoundedCache, keyFn func(A) string, ttl time.Duration, fn func(A) (V, error)) func(A) (V, error) {
	return func(arg A) (V, error) {
		v, err := c.GetOrSet(keyFn(arg), func() (interface{}, error) {
			return fn(arg)
		}, ttl)
		if err != nil {
			var zero V
			return zero, err
		}
		// A shared cache may hold a foreign value under a colliding key;
		// recompute rather than panic on the assertion.
		val, ok := v.(V)
		if !ok {
			return fn(arg)
		}
		return val, nil
	}
}
