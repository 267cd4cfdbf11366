package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// Config represents metrics exporter configuration.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	Port           int           `yaml:"port"`
	Path           string        `yaml:"path"`
	Namespace      string        `yaml:"namespace"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// Exporter publishes cache statistics as Prometheus metrics. Caches register
// themselves by name; the exporter polls their Stats() on an interval and
// serves the result over HTTP.
type Exporter struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	caches   map[string]types.StatsProvider

	hitsTotal        *prometheus.GaugeVec
	missesTotal      *prometheus.GaugeVec
	evictionsTotal   *prometheus.GaugeVec
	expirationsTotal *prometheus.GaugeVec
	entries          *prometheus.GaugeVec
	sizeBytes        *prometheus.GaugeVec
	capacityBytes    *prometheus.GaugeVec
	hitRate          *prometheus.GaugeVec
	utilization      *prometheus.GaugeVec

	server *http.Server
}

// NewExporter creates a metrics exporter.
func NewExporter(config *Config) (*Exporter, error) {
	if config == nil {
		config = &Config{
			Enabled:        true,
			Port:           9090,
			Path:           "/metrics",
			Namespace:      "weathercache",
			UpdateInterval: 15 * time.Second,
		}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = 15 * time.Second
	}

	e := &Exporter{
		config:   config,
		registry: prometheus.NewRegistry(),
		caches:   make(map[string]types.StatsProvider),
	}

	if !config.Enabled {
		return e, nil
	}

	e.initMetrics()
	if err := e.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return e, nil
}

func (e *Exporter) initMetrics() {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: e.config.Namespace,
				Name:      name,
				Help:      help,
			},
			[]string{"cache"},
		)
	}

	e.hitsTotal = gauge("hits_total", "Total number of cache hits")
	e.missesTotal = gauge("misses_total", "Total number of cache misses")
	e.evictionsTotal = gauge("evictions_total", "Total number of capacity evictions")
	e.expirationsTotal = gauge("expirations_total", "Total number of TTL expirations")
	e.entries = gauge("entries", "Current number of cached entries")
	e.sizeBytes = gauge("size_bytes", "Current cache size in bytes")
	e.capacityBytes = gauge("capacity_bytes", "Configured cache capacity in bytes")
	e.hitRate = gauge("hit_rate", "Hit rate in [0,1]")
	e.utilization = gauge("utilization", "Size utilization in [0,1]")
}

func (e *Exporter) registerMetrics() error {
	collectors := []prometheus.Collector{
		e.hitsTotal,
		e.missesTotal,
		e.evictionsTotal,
		e.expirationsTotal,
		e.entries,
		e.sizeBytes,
		e.capacityBytes,
		e.hitRate,
		e.utilization,
	}
	for _, c := range collectors {
		if err := e.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a cache under the given name. Re-registering a name replaces
// the previous provider.
func (e *Exporter) Register(name string, provider types.StatsProvider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caches[name] = provider
}

// Unregister removes a cache and deletes its metric series.
func (e *Exporter) Unregister(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.caches, name)

	if !e.config.Enabled {
		return
	}
	labels := prometheus.Labels{"cache": name}
	for _, g := range []*prometheus.GaugeVec{
		e.hitsTotal, e.missesTotal, e.evictionsTotal, e.expirationsTotal,
		e.entries, e.sizeBytes, e.capacityBytes, e.hitRate, e.utilization,
	} {
		g.Delete(labels)
	}
}

// Update polls every registered cache and refreshes the exported gauges.
func (e *Exporter) Update() {
	if !e.config.Enabled {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for name, provider := range e.caches {
		stats := provider.Stats()
		labels := prometheus.Labels{"cache": name}
		e.hitsTotal.With(labels).Set(float64(stats.Hits))
		e.missesTotal.With(labels).Set(float64(stats.Misses))
		e.evictionsTotal.With(labels).Set(float64(stats.Evictions))
		e.expirationsTotal.With(labels).Set(float64(stats.Expirations))
		e.entries.With(labels).Set(float64(stats.Entries))
		e.sizeBytes.With(labels).Set(float64(stats.Size))
		e.capacityBytes.With(labels).Set(float64(stats.Capacity))
		e.hitRate.With(labels).Set(stats.HitRate)
		e.utilization.With(labels).Set(stats.Utilization)
	}
}

// Handler returns the Prometheus scrape handler backed by the exporter's
// registry. Use this to mount metrics on an existing HTTP server.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start serves the metrics endpoint on the configured port and begins the
// periodic update loop. It returns immediately; the server runs until Stop.
func (e *Exporter) Start(ctx context.Context) error {
	if !e.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(e.config.Path, e.Handler())

	e.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", e.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	go e.updateLoop(ctx)

	return nil
}

// Stop shuts down the metrics HTTP server.
func (e *Exporter) Stop(ctx context.Context) error {
	if e.server != nil {
		return e.server.Shutdown(ctx)
	}
	return nil
}

func (e *Exporter) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Update()
		}
	}
}
