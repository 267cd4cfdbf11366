// Package config provides configuration management for the weathercache
// subsystem with YAML file and environment variable support.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/StrayDogSyn/weathercache/internal/cache"
	"github.com/StrayDogSyn/weathercache/pkg/types"
)

// Configuration represents the complete cache subsystem configuration.
type Configuration struct {
	Memory    MemoryConfig    `yaml:"memory"`
	Disk      DiskConfig      `yaml:"disk"`
	Tiered    TieredConfig    `yaml:"tiered"`
	CostAware CostAwareConfig `yaml:"cost_aware"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// MemoryConfig configures the in-memory tier.
type MemoryConfig struct {
	MaxEntries      int           `yaml:"max_entries"`
	MaxSize         string        `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DiskConfig configures the persistent tier.
type DiskConfig struct {
	Directory            string        `yaml:"directory"`
	MaxSize              string        `yaml:"max_size"`
	MaxEntries           int           `yaml:"max_entries"`
	DefaultTTL           time.Duration `yaml:"default_ttl"`
	CompressionThreshold string        `yaml:"compression_threshold"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	SyncInterval         time.Duration `yaml:"sync_interval"`
}

// TieredConfig configures tier routing.
type TieredConfig struct {
	Level               string        `yaml:"level"`
	MemoryTTL           time.Duration `yaml:"memory_ttl"`
	DiskTTL             time.Duration `yaml:"disk_ttl"`
	MemorySizeThreshold string        `yaml:"memory_size_threshold"`
}

// CostAwareConfig configures the cost-aware cache.
type CostAwareConfig struct {
	MaxEntries      int                      `yaml:"max_entries"`
	MaxSize         string                   `yaml:"max_size"`
	DefaultTTL      time.Duration            `yaml:"default_ttl"`
	CleanupInterval time.Duration            `yaml:"cleanup_interval"`
	Weights         WeightsConfig            `yaml:"weights"`
	CategoryTTLs    map[string]time.Duration `yaml:"category_ttls"`
}

// WeightsConfig holds the eviction score weights; they must sum to 1.0.
type WeightsConfig struct {
	Age    float64 `yaml:"age"`
	Rarity float64 `yaml:"rarity"`
	Cost   float64 `yaml:"cost"`
	Size   float64 `yaml:"size"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns the default configuration.
func NewDefault() *Configuration {
	return &Configuration{
		Memory: MemoryConfig{
			MaxEntries:      1000,
			MaxSize:         "64MB",
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Disk: DiskConfig{
			Directory:            defaultCacheDir(),
			MaxSize:              "1GB",
			MaxEntries:           10000,
			DefaultTTL:           time.Hour,
			CompressionThreshold: "1KB",
			CleanupInterval:      10 * time.Minute,
			SyncInterval:         time.Minute,
		},
		Tiered: TieredConfig{
			Level:               "auto",
			MemoryTTL:           5 * time.Minute,
			DiskTTL:             time.Hour,
			MemorySizeThreshold: "64KB",
		},
		CostAware: CostAwareConfig{
			MaxEntries:      500,
			MaxSize:         "128MB",
			DefaultTTL:      30 * time.Minute,
			CleanupInterval: time.Minute,
			Weights:         WeightsConfig{Age: 0.3, Rarity: 0.3, Cost: 0.2, Size: 0.2},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "weathercache",
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "weathercache")
	}
	return filepath.Join(os.TempDir(), "weathercache")
}

// LoadFromFile loads configuration from a YAML file over the receiver.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv overrides settings from WEATHERCACHE_* environment variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("WEATHERCACHE_MEMORY_MAX_SIZE"); val != "" {
		c.Memory.MaxSize = val
	}
	if val := os.Getenv("WEATHERCACHE_MEMORY_MAX_ENTRIES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Memory.MaxEntries = n
		}
	}
	if val := os.Getenv("WEATHERCACHE_MEMORY_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Memory.DefaultTTL = d
		}
	}
	if val := os.Getenv("WEATHERCACHE_DISK_DIRECTORY"); val != "" {
		c.Disk.Directory = val
	}
	if val := os.Getenv("WEATHERCACHE_DISK_MAX_SIZE"); val != "" {
		c.Disk.MaxSize = val
	}
	if val := os.Getenv("WEATHERCACHE_DISK_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Disk.DefaultTTL = d
		}
	}
	if val := os.Getenv("WEATHERCACHE_TIER_LEVEL"); val != "" {
		c.Tiered.Level = val
	}
	if val := os.Getenv("WEATHERCACHE_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	return nil
}

// SaveToFile writes the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for malformed settings. It fails fast
// so a bad policy never reaches a running cache.
func (c *Configuration) Validate() error {
	if _, err := ParseSize(c.Memory.MaxSize); err != nil {
		return fmt.Errorf("memory.max_size: %w", err)
	}
	if c.Memory.MaxEntries <= 0 {
		return fmt.Errorf("memory.max_entries must be greater than 0")
	}
	if c.Disk.Directory == "" {
		return fmt.Errorf("disk.directory is required")
	}
	if _, err := ParseSize(c.Disk.MaxSize); err != nil {
		return fmt.Errorf("disk.max_size: %w", err)
	}
	if c.Disk.MaxEntries <= 0 {
		return fmt.Errorf("disk.max_entries must be greater than 0")
	}
	if _, err := ParseSize(c.Disk.CompressionThreshold); err != nil {
		return fmt.Errorf("disk.compression_threshold: %w", err)
	}
	if _, err := parseLevel(c.Tiered.Level); err != nil {
		return err
	}
	threshold, err := ParseSize(c.Tiered.MemorySizeThreshold)
	if err != nil {
		return fmt.Errorf("tiered.memory_size_threshold: %w", err)
	}
	memMax, _ := ParseSize(c.Memory.MaxSize)
	if threshold > memMax {
		return fmt.Errorf("tiered.memory_size_threshold (%d) exceeds memory.max_size (%d)", threshold, memMax)
	}
	if _, err := ParseSize(c.CostAware.MaxSize); err != nil {
		return fmt.Errorf("cost_aware.max_size: %w", err)
	}
	if c.CostAware.MaxEntries <= 0 {
		return fmt.Errorf("cost_aware.max_entries must be greater than 0")
	}

	w := c.CostAware.Weights
	sum := w.Age + w.Rarity + w.Cost + w.Size
	if sum < 0.999999 || sum > 1.000001 {
		return fmt.Errorf("cost_aware.weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// ParseSize parses a human-readable size string like "64MB" or "1GB" into
// bytes. A bare number is taken as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "TB"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if value < 0 {
		return 0, fmt.Errorf("size must be non-negative")
	}
	return int64(value * float64(multiplier)), nil
}

func parseLevel(s string) (types.TierLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return types.TierAuto, nil
	case "memory", "memory_only":
		return types.TierMemoryOnly, nil
	case "disk", "disk_only":
		return types.TierDiskOnly, nil
	case "both":
		return types.TierBoth, nil
	default:
		return types.TierAuto, fmt.Errorf("invalid tiered.level: %q (must be auto, memory, disk, or both)", s)
	}
}

// BuildManager constructs the tiered cache manager described by the
// configuration. This is the composition-root entry point: build it once at
// startup and pass it to consumers.
func (c *Configuration) BuildManager(logger *slog.Logger) (*cache.Manager, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	memMax, _ := ParseSize(c.Memory.MaxSize)
	mem := cache.NewBoundedCache(&cache.BoundedConfig{
		MaxEntries:      c.Memory.MaxEntries,
		MaxSize:         memMax,
		DefaultTTL:      c.Memory.DefaultTTL,
		CleanupInterval: c.Memory.CleanupInterval,
		Logger:          logger,
	})

	diskMax, _ := ParseSize(c.Disk.MaxSize)
	compressionThreshold, _ := ParseSize(c.Disk.CompressionThreshold)
	disk, err := cache.NewPersistentCache(&cache.PersistentConfig{
		Directory:            c.Disk.Directory,
		MaxSize:              diskMax,
		MaxEntries:           c.Disk.MaxEntries,
		DefaultTTL:           c.Disk.DefaultTTL,
		CompressionThreshold: compressionThreshold,
		CleanupInterval:      c.Disk.CleanupInterval,
		SyncInterval:         c.Disk.SyncInterval,
		Logger:               logger,
	})
	if err != nil {
		mem.Close()
		return nil, err
	}

	level, _ := parseLevel(c.Tiered.Level)
	threshold, _ := ParseSize(c.Tiered.MemorySizeThreshold)
	return cache.NewManager(mem, disk, &cache.TieredConfig{
		Level:               level,
		MemoryTTL:           c.Tiered.MemoryTTL,
		DiskTTL:             c.Tiered.DiskTTL,
		MemorySizeThreshold: threshold,
		Logger:              logger,
	})
}

// BuildCostAware constructs the cost-aware cache described by the
// configuration.
func (c *Configuration) BuildCostAware(logger *slog.Logger) (*cache.CostAwareCache, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	maxSize, _ := ParseSize(c.CostAware.MaxSize)
	cfg := &cache.CostAwareConfig{
		MaxEntries:      c.CostAware.MaxEntries,
		MaxSize:         maxSize,
		DefaultTTL:      c.CostAware.DefaultTTL,
		CleanupInterval: c.CostAware.CleanupInterval,
		Weights: cache.ScoreWeights{
			Age:    c.CostAware.Weights.Age,
			Rarity: c.CostAware.Weights.Rarity,
			Cost:   c.CostAware.Weights.Cost,
			Size:   c.CostAware.Weights.Size,
		},
		Logger: logger,
	}
	if len(c.CostAware.CategoryTTLs) > 0 {
		cfg.CategoryTTLs = make(map[types.ContentCategory]time.Duration, len(c.CostAware.CategoryTTLs))
		for category, ttl := range c.CostAware.CategoryTTLs {
			cfg.CategoryTTLs[types.ContentCategory(category)] = ttl
		}
	}
	return cache.NewCostAwareCache(cfg)
}
