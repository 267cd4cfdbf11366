// Package metrics exports cache statistics as Prometheus metrics.
//
// The Exporter polls registered caches through the types.StatsProvider
// interface and publishes their counters as gauges labelled by cache name.
// It can serve its own HTTP endpoint via Start, or be mounted on an existing
// server via Handler.
package metrics
