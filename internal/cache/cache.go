package cache

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dshills/hybridindex/internal/metrics"
	"github.com/dshills/hybridindex/pkg/types"
)

// Defaults
const (
	DefaultTTL            = 7 * 24 * time.Hour
	DefaultMaxBytes       = 512 << 20
	DefaultGCInterval     = 5 * time.Minute
	DefaultGCDiscardRatio = 0.5
)

// Config holds configuration for the embedding cache
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is true.
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`

	// TTL bounds entry age. Zero disables age-based eviction.
	TTL time.Duration `yaml:"ttl"`

	// MaxBytes bounds the total compressed size. Zero disables size-based eviction.
	MaxBytes int64 `yaml:"max_bytes"`

	// HotEntries is the size of the in-process LRU of decoded vectors
	HotEntries int `yaml:"hot_entries"`

	// GCInterval is how often the value log is collected. Zero disables GC.
	GCInterval     time.Duration `yaml:"gc_interval"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio"`
}

// DefaultConfig returns defaults for an on-disk cache at path
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		TTL:            DefaultTTL,
		MaxBytes:       DefaultMaxBytes,
		HotEntries:     DefaultHotEntries,
		GCInterval:     DefaultGCInterval,
		GCDiscardRatio: DefaultGCDiscardRatio,
	}
}

// Stats is a point-in-time view of the cache
type Stats struct {
	Entries    int   `json:"entries"`
	Bytes      int64 `json:"bytes"`
	HotEntries int   `json:"hot_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Corrupt    int64 `json:"corrupt"`
	Evictions  int64 `json:"evictions"`
}

// entry is the bookkeeping record of one stored value
type entry struct {
	key     string
	created time.Time
	size    int64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the time source used for TTL decisions
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is a content-addressed store of embedding vectors keyed by
// (content hash, tier). Values live in Badger, compressed with zstd, with an
// LRU of decoded vectors in front. It is safe for concurrent use.
type Cache struct {
	db     *badger.DB
	codec  *codec
	hot    *hotCache
	gc     *gcRunner
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// mu guards the bookkeeping below
	mu         sync.Mutex
	index      map[string]*list.Element
	order      *list.List // of *entry, oldest first
	totalBytes int64

	hits      atomic.Int64
	misses    atomic.Int64
	corrupt   atomic.Int64
	evictions atomic.Int64
}

// Open opens or creates the cache and rebuilds its bookkeeping from Badger.
func Open(cfg Config, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required for a persistent cache")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "cache"))

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	cd, err := newCodec()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Cache{
		db:     db,
		codec:  cd,
		hot:    newHotCache(cfg.HotEntries),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		index:  make(map[string]*list.Element),
		order:  list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.rebuild(); err != nil {
		c.codec.close()
		_ = db.Close()
		return nil, fmt.Errorf("rebuild cache index: %w", err)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio == 0 {
			ratio = DefaultGCDiscardRatio
		}
		runner, err := newGCRunner(db, cfg.GCInterval, ratio, logger)
		if err != nil {
			c.codec.close()
			_ = db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		c.gc = runner
		runner.start()
	}

	logger.Info("embedding cache opened",
		slog.Int("entries", len(c.index)),
		slog.Int64("bytes", c.totalBytes),
		slog.Bool("in_memory", cfg.InMemory))

	return c, nil
}

// rebuild scans Badger and reconstructs the age-ordered index. Entries with
// unreadable headers are deleted.
func (c *Cache) rebuild() error {
	var entries []*entry
	var bad [][]byte

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(val []byte) error {
				created, err := readHeader(val)
				if err != nil {
					return err
				}
				entries = append(entries, &entry{key: string(key), created: created, size: int64(len(val))})
				return nil
			})
			if errors.Is(err, types.ErrCacheCorrupt) {
				bad = append(bad, key)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].created.Before(entries[j].created)
	})
	for _, e := range entries {
		c.index[e.key] = c.order.PushBack(e)
		c.totalBytes += e.size
	}
	metrics.CacheBytes.Set(float64(c.totalBytes))

	if len(bad) > 0 {
		c.corrupt.Add(int64(len(bad)))
		metrics.CacheCorrupt.Add(float64(len(bad)))
		return c.deleteKeys(bad)
	}
	return nil
}

// Get returns the cached vector for (hash, tier). Corrupt entries are
// deleted and reported as a miss.
func (c *Cache) Get(hash, tier string) (*types.EmbeddingVector, bool) {
	key := entryKey(tier, hash)

	c.mu.Lock()
	elem, ok := c.index[key]
	if ok && c.expired(elem.Value.(*entry)) {
		c.removeLocked(elem)
		c.mu.Unlock()
		c.hot.remove(key)
		c.recordEviction("ttl")
		_ = c.deleteKeys([][]byte{[]byte(key)})
		return c.miss()
	}
	c.mu.Unlock()
	if !ok {
		return c.miss()
	}

	if v, ok := c.hot.get(key); ok {
		return c.hit(v)
	}

	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.forget(key)
		return c.miss()
	}
	if err != nil {
		c.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return c.miss()
	}

	v, err := c.codec.decode(value, tier)
	if err != nil {
		c.logger.Warn("discarding corrupt cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		c.corrupt.Add(1)
		metrics.CacheCorrupt.Inc()
		c.forget(key)
		_ = c.deleteKeys([][]byte{[]byte(key)})
		return c.miss()
	}

	c.hot.add(key, v)
	return c.hit(v)
}

// Put stores a vector under (hash, tier), replacing any previous value, then
// evicts expired and excess entries.
func (c *Cache) Put(hash, tier string, v *types.EmbeddingVector) error {
	key := entryKey(tier, hash)
	created := c.now()

	value, err := c.codec.encode(v, created)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if c.cfg.TTL > 0 {
			e = e.WithTTL(c.cfg.TTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	c.mu.Lock()
	if elem, ok := c.index[key]; ok {
		c.removeLocked(elem)
	}
	c.index[key] = c.order.PushBack(&entry{key: key, created: created, size: int64(len(value))})
	c.totalBytes += int64(len(value))
	c.mu.Unlock()

	c.hot.add(key, v)
	return c.evict()
}

// evict removes entries older than TTL, then the oldest entries while the
// cache is larger than MaxBytes.
func (c *Cache) evict() error {
	var victims [][]byte

	c.mu.Lock()
	for elem := c.order.Front(); elem != nil; {
		e := elem.Value.(*entry)
		if !c.expired(e) {
			// entries are ordered by creation time
			break
		}
		next := elem.Next()
		c.removeLocked(elem)
		victims = append(victims, []byte(e.key))
		c.recordEviction("ttl")
		elem = next
	}
	if c.cfg.MaxBytes > 0 {
		for c.totalBytes > c.cfg.MaxBytes && c.order.Len() > 0 {
			elem := c.order.Front()
			e := elem.Value.(*entry)
			c.removeLocked(elem)
			victims = append(victims, []byte(e.key))
			c.recordEviction("size")
		}
	}
	c.mu.Unlock()

	for _, key := range victims {
		c.hot.remove(string(key))
	}
	return c.deleteKeys(victims)
}

func (c *Cache) expired(e *entry) bool {
	return c.cfg.TTL > 0 && c.now().Sub(e.created) > c.cfg.TTL
}

// removeLocked drops an element from the bookkeeping. Caller holds mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := c.order.Remove(elem).(*entry)
	delete(c.index, e.key)
	c.totalBytes -= e.size
	metrics.CacheBytes.Set(float64(c.totalBytes))
}

func (c *Cache) forget(key string) {
	c.mu.Lock()
	if elem, ok := c.index[key]; ok {
		c.removeLocked(elem)
	}
	c.mu.Unlock()
	c.hot.remove(key)
}

func (c *Cache) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete cache entry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush cache deletes: %w", err)
	}
	return nil
}

func (c *Cache) recordEviction(reason string) {
	c.evictions.Add(1)
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
}

func (c *Cache) hit(v *types.EmbeddingVector) (*types.EmbeddingVector, bool) {
	c.hits.Add(1)
	metrics.CacheHits.Inc()
	return v, true
}

func (c *Cache) miss() (*types.EmbeddingVector, bool) {
	c.misses.Add(1)
	metrics.CacheMisses.Inc()
	return nil, false
}

// Stats returns current counters and sizes
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries, bytes := len(c.index), c.totalBytes
	c.mu.Unlock()
	return Stats{
		Entries:    entries,
		Bytes:      bytes,
		HotEntries: c.hot.len(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Corrupt:    c.corrupt.Load(),
		Evictions:  c.evictions.Load(),
	}
}

// Clear removes every cached vector
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.index = make(map[string]*list.Element)
	c.order.Init()
	c.totalBytes = 0
	c.hot.purge()
	metrics.CacheBytes.Set(0)
	return nil
}

// Close stops background GC and closes Badger
func (c *Cache) Close() error {
	if c.gc != nil {
		c.gc.stop()
	}
	c.codec.close()
	return c.db.Close()
}
