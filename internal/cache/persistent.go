package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	cacheerrors "github.com/StrayDogSyn/weathercache/pkg/errors"
	"github.com/StrayDogSyn/weathercache/pkg/types"
)

const (
	defaultIndexFile     = "index.json"
	blobSuffix           = ".cache"
	compressedBlobSuffix = ".cache.zst"
)

// PersistentConfig configures a PersistentCache.
type PersistentConfig struct {
	Directory            string        `yaml:"directory"`
	MaxSize              int64         `yaml:"max_size"`
	MaxEntries           int           `yaml:"max_entries"`
	DefaultTTL           time.Duration `yaml:"default_ttl"`
	CompressionThreshold int64         `yaml:"compression_threshold"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	SyncInterval         time.Duration `yaml:"sync_interval"`
	IndexFile            string        `yaml:"index_file"`

	Serializer types.Serializer `yaml:"-"`
	Clock      types.Clock      `yaml:"-"`
	Logger     *slog.Logger     `yaml:"-"`
}

// persistentItem is one entry in the metadata index.
type persistentItem struct {
	Key         string    `json:"key"`
	FileName    string    `json:"filename"`
	Size        int64     `json:"size"`     // bytes on disk
	RawSize     int64     `json:"raw_size"` // bytes before compression
	CreatedAt   time.Time `json:"created"`
	ExpiresAt   time.Time `json:"expires"` // zero means never
	AccessCount int64     `json:"access_count"`
	LastAccess  time.Time `json:"last_access"`
	Compressed  bool      `json:"compressed"`
	Checksum    string    `json:"checksum"`
}

func (it *persistentItem) expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && now.After(it.ExpiresAt)
}

// PersistentCache is a disk-backed cache. Each entry lives in its own blob
// file named by a hash of the key; a single JSON index maps keys to blob
// metadata. The index is written via temp-file-plus-rename so a crash never
// leaves a partially written index. Per-entry storage failures drop the
// offending entry and surface as a miss or failed set; they never affect
// other entries.
type PersistentCache struct {
	mu          sync.RWMutex
	directory   string
	index       map[string]*persistentItem
	currentSize int64

	config     *PersistentConfig
	serializer types.Serializer
	clock      types.Clock
	logger     *slog.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder

	stats types.CacheStats

	stopCh chan struct{}
	closed bool
}

// NewPersistentCache creates a disk-backed cache rooted at the configured
// directory, recovering the metadata index from a previous run. Index
// entries whose blob file no longer exists are dropped and the healed index
// is re-persisted.
func NewPersistentCache(config *PersistentConfig) (*PersistentCache, error) {
	if config == nil {
		config = &PersistentConfig{}
	}
	if config.Directory == "" {
		return nil, cacheerrors.New(cacheerrors.ErrCodeInvalidConfig, "cache directory is required").
			WithComponent("persistent")
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 1 * 1024 * 1024 * 1024 // 1GB
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}
	if config.CompressionThreshold <= 0 {
		config.CompressionThreshold = 1024
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = time.Minute
	}
	if config.IndexFile == "" {
		config.IndexFile = defaultIndexFile
	}

	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeStorageWrite, "failed to create cache directory", err).
			WithComponent("persistent")
	}

	serializer := config.Serializer
	if serializer == nil {
		serializer = types.JSONSerializer{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeInvalidConfig, "failed to create zstd encoder", err).
			WithComponent("persistent")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeInvalidConfig, "failed to create zstd decoder", err).
			WithComponent("persistent")
	}

	c := &PersistentCache{
		directory:  config.Directory,
		index:      make(map[string]*persistentItem),
		config:     config,
		serializer: serializer,
		clock:      types.ClockOrReal(config.Clock),
		logger:     logger,
		enc:        enc,
		dec:        dec,
		stats:      types.CacheStats{Capacity: config.MaxSize},
		stopCh:     make(chan struct{}),
	}

	if err := c.loadIndex(); err != nil {
		return nil, err
	}

	go c.sweepLoop()
	go c.syncLoop()

	return c, nil
}

// Get returns the stored bytes for key. A missing or corrupt blob drops the
// stale index entry and reports a miss.
func (c *PersistentCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	item, ok := c.index[key]
	c.mu.RUnlock()

	if !ok {
		c.recordMiss()
		return nil, false
	}

	if item.expired(c.clock.Now()) {
		c.mu.Lock()
		c.dropItemLocked(item, true)
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	// Read and decompress outside the lock.
	data, err := c.readBlob(item)
	if err != nil {
		c.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		c.mu.Lock()
		c.dropItemLocked(item, false)
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	// Touch only if the entry was not replaced while the lock was released.
	if cur, ok := c.index[key]; ok && cur == item {
		item.AccessCount++
		item.LastAccess = c.clock.Now()
	}
	c.stats.Hits++
	c.mu.Unlock()

	return data, true
}

// GetValue reads the entry for key and deserializes it into out, which must
// be a pointer. It returns false on a miss; a deserialization failure drops
// the entry and returns an error.
func (c *PersistentCache) GetValue(key string, out interface{}) (bool, error) {
	data, ok := c.Get(key)
	if !ok {
		return false, nil
	}
	if err := c.serializer.Unmarshal(data, out); err != nil {
		c.Delete(key)
		return false, cacheerrors.Wrap(cacheerrors.ErrCodeDeserialization, "failed to decode cached value", err).
			WithComponent("persistent").WithKey(key)
	}
	return true, nil
}

// Set stores data under key. Payloads at or above the compression threshold
// are zstd-compressed before writing. The blob is written before the index
// is updated, so a failed write leaves no dangling metadata. A non-positive
// ttl selects the configured default.
func (c *PersistentCache) Set(key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	// Compress outside the lock.
	raw := data
	compressed := false
	if int64(len(data)) >= c.config.CompressionThreshold {
		data = c.enc.EncodeAll(data, nil)
		compressed = true
	}

	if int64(len(data)) > c.config.MaxSize {
		return cacheerrors.Newf(cacheerrors.ErrCodeEntryTooLarge,
			"entry of %d bytes exceeds disk budget of %d", len(data), c.config.MaxSize).
			WithComponent("persistent").WithKey(key)
	}

	now := c.clock.Now()
	item := &persistentItem{
		Key:        key,
		FileName:   blobFileName(key, compressed),
		Size:       int64(len(data)),
		RawSize:    int64(len(raw)),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastAccess: now,
		Compressed: compressed,
		Checksum:   checksum(raw),
	}

	// Write the blob outside the lock.
	blobPath := filepath.Join(c.directory, item.FileName)
	if err := os.WriteFile(blobPath, data, 0640); err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeStorageWrite, "failed to write cache blob", err).
			WithComponent("persistent").WithKey(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace semantics: account the old entry out before evicting.
	if old, ok := c.index[key]; ok {
		c.currentSize -= old.Size
		delete(c.index, key)
		if old.FileName != item.FileName {
			_ = os.Remove(filepath.Join(c.directory, old.FileName))
		}
	}

	c.evictForLocked(item.Size, 1)

	c.index[key] = item
	c.currentSize += item.Size
	return nil
}

// SetValue serializes v and stores it under key.
func (c *PersistentCache) SetValue(key string, v interface{}, ttl time.Duration) error {
	data, err := c.serializer.Marshal(v)
	if err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeSerialization, "failed to encode value", err).
			WithComponent("persistent").WithKey(key)
	}
	return c.Set(key, data, ttl)
}

// GetOrSet returns the stored bytes for key, computing and storing them via
// factory on a miss. The factory may run more than once under concurrent
// misses for the same key.
func (c *PersistentCache) GetOrSet(key string, factory func() ([]byte, error), ttl time.Duration) ([]byte, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}
	data, err := factory()
	if err != nil {
		return nil, err
	}
	if err := c.Set(key, data, ttl); err != nil {
		return nil, err
	}
	return data, nil
}

// Delete removes key if present. Idempotent.
func (c *PersistentCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.index[key]
	if !ok {
		return false
	}
	c.dropItemLocked(item, false)
	return true
}

// InvalidatePattern deletes all keys matching the glob pattern and returns
// the number removed.
func (c *PersistentCache) InvalidatePattern(pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*persistentItem
	for key, item := range c.index {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return 0, err
		}
		if ok {
			matched = append(matched, item)
		}
	}
	for _, item := range matched {
		c.dropItemLocked(item, false)
	}
	return len(matched), nil
}

// Clear removes all entries and their blob files.
func (c *PersistentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.index {
		_ = os.Remove(filepath.Join(c.directory, item.FileName))
	}
	c.index = make(map[string]*persistentItem)
	c.currentSize = 0
}

// Len returns the number of indexed entries.
func (c *PersistentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// Size returns the total on-disk byte size of all entries.
func (c *PersistentCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Keys returns all indexed keys (for debugging).
func (c *PersistentCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.index))
	for key := range c.index {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns a snapshot of cache statistics.
func (c *PersistentCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.index)
	stats.Size = c.currentSize
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if stats.Capacity > 0 {
		stats.Utilization = float64(c.currentSize) / float64(stats.Capacity)
	}
	return stats
}

// Sweep removes all expired entries immediately and returns the number of
// on-disk bytes reclaimed.
func (c *PersistentCache) Sweep() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

// Optimize purges expired entries and compacts the index to disk. It
// returns the number of bytes reclaimed.
func (c *PersistentCache) Optimize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	reclaimed := c.sweepLocked()
	if err := c.saveIndexLocked(); err != nil {
		c.logger.Warn("failed to persist cache index", "error", err)
	}
	return reclaimed
}

// Close stops the background goroutines and syncs the index a final time.
func (c *PersistentCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopCh)

	return c.saveIndexLocked()
}

// Helper methods

func blobFileName(key string, compressed bool) string {
	hash := sha256.Sum256([]byte(key))
	name := fmt.Sprintf("%x", hash[:8])
	if compressed {
		return name + compressedBlobSuffix
	}
	return name + blobSuffix
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

func (c *PersistentCache) readBlob(item *persistentItem) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(c.directory, item.FileName))
	if err != nil {
		return nil, cacheerrors.Wrap(cacheerrors.ErrCodeStorageRead, "failed to read cache blob", err).
			WithComponent("persistent").WithKey(item.Key)
	}

	if item.Compressed {
		data, err = c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, cacheerrors.Wrap(cacheerrors.ErrCodeCorruptBlob, "failed to decompress cache blob", err).
				WithComponent("persistent").WithKey(item.Key)
		}
	}

	if checksum(data) != item.Checksum {
		return nil, cacheerrors.New(cacheerrors.ErrCodeChecksumError, "cache blob checksum mismatch").
			WithComponent("persistent").WithKey(item.Key)
	}

	return data, nil
}

// dropItemLocked removes an entry and its blob file. Caller holds the write
// lock. The drop is conditional on entry identity, not key presence: Get
// releases the lock around blob I/O, so by the time a failed read comes back
// to drop its entry, a concurrent Set may have replaced the key. Dropping by
// key alone would destroy the replacement and corrupt the size accounting.
func (c *PersistentCache) dropItemLocked(item *persistentItem, expired bool) {
	if cur, ok := c.index[item.Key]; !ok || cur != item {
		return
	}
	_ = os.Remove(filepath.Join(c.directory, item.FileName))
	delete(c.index, item.Key)
	c.currentSize -= item.Size
	if expired {
		c.stats.Expirations++
	}
}

func (c *PersistentCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

// evictForLocked frees space for an incoming entry, least-recently-accessed
// first with earliest-created breaking ties. Caller holds the write lock.
func (c *PersistentCache) evictForLocked(incomingSize int64, incomingCount int) {
	if c.currentSize+incomingSize <= c.config.MaxSize &&
		len(c.index)+incomingCount <= c.config.MaxEntries {
		return
	}

	items := make([]*persistentItem, 0, len(c.index))
	for _, item := range c.index {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].LastAccess.Equal(items[j].LastAccess) {
			return items[i].LastAccess.Before(items[j].LastAccess)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	for _, item := range items {
		if c.currentSize+incomingSize <= c.config.MaxSize &&
			len(c.index)+incomingCount <= c.config.MaxEntries {
			break
		}
		c.dropItemLocked(item, false)
		c.stats.Evictions++
	}
}

func (c *PersistentCache) sweepLocked() int64 {
	now := c.clock.Now()
	var expired []*persistentItem
	for _, item := range c.index {
		if item.expired(now) {
			expired = append(expired, item)
		}
	}

	var reclaimed int64
	for _, item := range expired {
		reclaimed += item.Size
		c.dropItemLocked(item, true)
	}
	return reclaimed
}

func (c *PersistentCache) loadIndex() error {
	indexPath := filepath.Join(c.directory, c.config.IndexFile)

	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh cache
		}
		return cacheerrors.Wrap(cacheerrors.ErrCodeStorageRead, "failed to read cache index", err).
			WithComponent("persistent")
	}

	var items map[string]*persistentItem
	if err := json.Unmarshal(data, &items); err != nil {
		// A corrupt index is not fatal: start fresh rather than refusing to
		// construct the cache.
		c.logger.Warn("cache index corrupt, starting fresh", "path", indexPath, "error", err)
		return nil
	}

	healed := false
	c.currentSize = 0
	for key, item := range items {
		if _, err := os.Stat(filepath.Join(c.directory, item.FileName)); err != nil {
			healed = true
			continue // blob deleted externally; drop the stale entry
		}
		c.index[key] = item
		c.currentSize += item.Size
	}

	if healed {
		if err := c.saveIndexLocked(); err != nil {
			c.logger.Warn("failed to re-persist healed index", "error", err)
		}
	}
	return nil
}

// saveIndexLocked writes the index to a temp file and atomically renames it
// into place. Caller holds at least the read lock.
func (c *PersistentCache) saveIndexLocked() error {
	indexPath := filepath.Join(c.directory, c.config.IndexFile)
	tmpPath := indexPath + ".tmp"

	data, err := json.Marshal(c.index)
	if err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeSerialization, "failed to encode cache index", err).
			WithComponent("persistent")
	}
	if err := os.WriteFile(tmpPath, data, 0640); err != nil {
		return cacheerrors.Wrap(cacheerrors.ErrCodeStorageWrite, "failed to write cache index", err).
			WithComponent("persistent")
	}
	if err := os.Rename(tmpPath, indexPath); err != nil {
		_ = os.Remove(tmpPath)
		return cacheerrors.Wrap(cacheerrors.ErrCodeStorageWrite, "failed to replace cache index", err).
			WithComponent("persistent")
	}
	return nil
}

func (c *PersistentCache) sweepLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			reclaimed := c.sweepLocked()
			c.mu.Unlock()
			if reclaimed > 0 {
				c.logger.Debug("disk expiry sweep reclaimed space", "bytes", reclaimed)
			}
		}
	}
}

func (c *PersistentCache) syncLoop() {
	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			err := c.saveIndexLocked()
			c.mu.RUnlock()
			if err != nil {
				c.logger.Warn("periodic index sync failed", "error", err)
			}
		}
	}
}
