/*
Package types provides the core interfaces and data structures shared by the
weathercache tiers.

This package defines the contracts between the cache implementations and
their callers: the Store interface every tier satisfies, the statistics
snapshot shape, and the pluggable collaborators (clock, serializer, size
hints) that keep the tiers testable and free of hard-wired dependencies.

# Core Interfaces

Store:
The minimal mutable key/value surface (Get, Set, Delete, Clear, Len, Size,
Stats) implemented by the bounded memory cache, the persistent disk cache,
and the tiered manager.

Clock:
Injectable time source. Production code uses RealClock; expiry tests drive a
fake clock forward instead of sleeping.

Serializer:
Value-to-bytes codec used by the persistent tier. JSONSerializer is the
default; callers with binary payloads supply their own.

SizeHint:
Optional interface a cached value can implement to report its own byte
estimate, bypassing the recursive best-effort estimator.

# Thread Safety

All Store implementations in this module are safe for concurrent use. The
interfaces here carry no synchronization themselves; implementers own their
locking.
*/
package types
