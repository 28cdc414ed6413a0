package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/lewisedginton/financial_qa/pkg/logger"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAge       = 7 * 24 * time.Hour
	DefaultMemcacheSize = 100
	DefaultDir          = "cache"

	tierMemory     = "memory"
	tierPersistent = "persistent"
)

// Recorder receives cache events. *metrics.Metrics satisfies it.
type Recorder interface {
	CacheHit(tier string)
	CacheMiss()
	CacheEviction()
	CacheInvalidation(kind string, n int)
	CacheCorruptEntry()
	CacheMemoryEntries(n int)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)               {}
func (nopRecorder) CacheMiss()                    {}
func (nopRecorder) CacheEviction()                {}
func (nopRecorder) CacheInvalidation(string, int) {}
func (nopRecorder) CacheCorruptEntry()            {}
func (nopRecorder) CacheMemoryEntries(int)        {}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	MemoryHits     int64         `json:"memory_hits"`
	PersistentHits int64         `json:"persistent_hits"`
	Misses         int64         `json:"misses"`
	Evictions      int64         `json:"evictions"`
	MemoryEntries  int           `json:"memory_entries"`
	MemcacheSize   int           `json:"memcache_size"`
	MaxAge         time.Duration `json:"max_age"`
}

// Manager is the two-tier cache. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	memory *memoryTier
	stats  Stats
	// gen is bumped under mu once a removal has reached the persistent tier.
	// Promotions and Set inserts that started under an older gen are dropped.
	gen uint64

	disk        persistentTier
	maxAge      time.Duration
	now         func() time.Time
	log         logger.Logger
	rec         Recorder
	sweepOnOpen bool

	calls singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithDir keeps the persistent tier in a local directory.
func WithDir(dir string) Option {
	return func(m *Manager) { m.disk = persistentTier{files: storage.NewLocalFileProvider(dir)} }
}

// WithProvider keeps the persistent tier on any FileProvider.
func WithProvider(p storage.FileProvider) Option {
	return func(m *Manager) { m.disk = persistentTier{files: p} }
}

// WithMaxAge sets the entry lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.maxAge = d }
}

// WithMemcacheSize bounds the memory tier.
func WithMemcacheSize(n int) Option {
	return func(m *Manager) { m.memory = newMemoryTier(n) }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.rec = r }
}

// WithoutStartupSweep skips the SweepExpired pass normally run by New.
func WithoutStartupSweep() Option {
	return func(m *Manager) { m.sweepOnOpen = false }
}

// New creates a Manager. Unless disabled, expired and corrupt persistent
// entries are swept before it is returned; a failing sweep is logged only.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		memory:      newMemoryTier(DefaultMemcacheSize),
		disk:        persistentTier{files: storage.NewLocalFileProvider(DefaultDir)},
		maxAge:      DefaultMaxAge,
		now:         time.Now,
		log:         logger.NewNopLogger(),
		rec:         nopRecorder{},
		sweepOnOpen: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %s", m.maxAge)
	}
	if m.memory.capacity <= 0 {
		return nil, fmt.Errorf("memcache size must be positive, got %d", m.memory.capacity)
	}
	if m.log == nil {
		m.log = logger.NewNopLogger()
	}
	if m.rec == nil {
		m.rec = nopRecorder{}
	}
	m.stats.MemcacheSize = m.memory.capacity
	m.stats.MaxAge = m.maxAge

	if m.sweepOnOpen {
		n, err := m.SweepExpired(context.Background())
		if err != nil {
			m.log.Warn("Startup cache sweep incomplete", logger.ErrorField(err))
		}
		m.log.Info("Cache initialised",
			logger.IntField("expired_removed", n),
			logger.IntField("memcache_size", m.memory.capacity),
			logger.DurationField("max_age", m.maxAge))
	}
	return m, nil
}

func (m *Manager) expired(ts, now time.Time) bool {
	return now.Sub(ts) >= m.maxAge
}

// Get returns a copy of the live value for key. Expired or corrupt persistent
// files are removed on the way; read errors degrade to a miss.
func (m *Manager) Get(ctx context.Context, key string) (any, bool) {
	raw, ok := m.lookup(ctx, key)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		m.log.Warn("Undecodable cached value", logger.StringField("key", key), logger.ErrorField(err))
		return nil, false
	}
	return v, true
}

// GetInto decodes the live value for key into dest. It reports false with no
// error on a miss, and false with an error when the value does not fit dest.
func (m *Manager) GetInto(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := m.lookup(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached value %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) lookup(ctx context.Context, key string) ([]byte, bool) {
	if validateKey(key) != nil {
		m.miss()
		return nil, false
	}
	now := m.now()

	m.mu.Lock()
	if e, ok := m.memory.get(key); ok {
		if m.expired(e.ts, now) {
			// The persistent copy is equally old and is left for the sweeper.
			m.memory.remove(key)
			m.stats.Misses++
			n := m.memory.len()
			m.mu.Unlock()
			m.rec.CacheMiss()
			m.rec.CacheMemoryEntries(n)
			return nil, false
		}
		m.stats.MemoryHits++
		m.mu.Unlock()
		m.rec.CacheHit(tierMemory)
		return e.raw, true
	}
	gen := m.gen
	m.mu.Unlock()

	data, err := m.disk.read(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			m.log.Warn("Persistent cache read failed", logger.StringField("key", key), logger.ErrorField(err))
		}
		m.miss()
		return nil, false
	}
	ts, raw, err := decodeRecord(data)
	if err != nil {
		m.dropCorrupt(ctx, key, err)
		m.miss()
		return nil, false
	}
	if m.expired(ts, now) {
		if err := m.disk.remove(ctx, key); err != nil {
			m.log.Warn("Failed to remove expired cache file", logger.StringField("key", key), logger.ErrorField(err))
		}
		m.rec.CacheInvalidation("expired", 1)
		m.miss()
		return nil, false
	}

	m.promote(key, memEntry{ts: ts, raw: raw}, gen)
	m.mu.Lock()
	m.stats.PersistentHits++
	m.mu.Unlock()
	m.rec.CacheHit(tierPersistent)
	return raw, true
}

// promote copies a persisted entry into memory unless a concurrent Set already
// put a newer one there or a removal ran since gen was read.
func (m *Manager) promote(key string, e memEntry, gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	if cur, ok := m.memory.get(key); ok && !cur.ts.Before(e.ts) {
		m.mu.Unlock()
		return
	}
	m.putLocked(key, e)
}

// settle records that a removal reached the persistent tier and drops the
// memory entries matched by fn, which an in-flight promotion may have added.
func (m *Manager) settle(fn func(string) bool) {
	m.mu.Lock()
	m.gen++
	m.memory.removeIf(func(k string, _ memEntry) bool { return fn(k) })
	n := m.memory.len()
	m.mu.Unlock()
	m.rec.CacheMemoryEntries(n)
}

// putLocked inserts e and releases m.mu.
func (m *Manager) putLocked(key string, e memEntry) {
	evicted, didEvict := m.memory.put(key, e)
	if didEvict {
		m.stats.Evictions++
	}
	n := m.memory.len()
	m.mu.Unlock()

	if didEvict {
		m.rec.CacheEviction()
		m.log.Debug("Evicted cache entry from memory", logger.StringField("key", evicted))
	}
	m.rec.CacheMemoryEntries(n)
}

func (m *Manager) miss() {
	m.mu.Lock()
	m.stats.Misses++
	m.mu.Unlock()
	m.rec.CacheMiss()
}

func (m *Manager) dropCorrupt(ctx context.Context, key string, cause error) {
	m.log.Warn("Removing corrupt cache file", logger.StringField("key", key), logger.ErrorField(cause))
	m.rec.CacheCorruptEntry()
	if err := m.disk.remove(ctx, key); err != nil {
		m.log.Warn("Failed to remove corrupt cache file", logger.StringField("key", key), logger.ErrorField(err))
	}
}

// Set stores value under key in both tiers with one shared timestamp. The file
// is written first; if that fails the memory tier is left untouched and the
// error, wrapping ErrWrite, is returned.
func (m *Manager) Set(ctx context.Context, key string, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	ts := m.now()
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	if err := m.disk.write(ctx, key, ts, raw); err != nil {
		m.log.Error("Persistent cache write failed", logger.StringField("key", key), logger.ErrorField(err))
		return fmt.Errorf("%w: %q: %v", ErrWrite, key, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		// A removal ran during the write; the next Get reloads from disk.
		m.mu.Unlock()
		return nil
	}
	if cur, ok := m.memory.get(key); ok && cur.ts.After(ts) {
		m.mu.Unlock()
		return nil
	}
	m.putLocked(key, memEntry{ts: ts, raw: raw})
	return nil
}

// Invalidate removes key from both tiers and reports whether either held it.
func (m *Manager) Invalidate(ctx context.Context, key string) (bool, error) {
	if validateKey(key) != nil {
		return false, nil
	}
	m.mu.Lock()
	inMemory := m.memory.remove(key)
	n := m.memory.len()
	m.mu.Unlock()
	m.rec.CacheMemoryEntries(n)

	onDisk, err := m.disk.exists(ctx, key)
	if err != nil {
		return inMemory, fmt.Errorf("check cache file %q: %w", key, err)
	}
	if onDisk {
		if err := m.disk.remove(ctx, key); err != nil {
			return inMemory, fmt.Errorf("remove cache file %q: %w", key, err)
		}
	}
	m.settle(func(k string) bool { return k == key })
	found := inMemory || onDisk
	if found {
		m.rec.CacheInvalidation("key", 1)
	}
	return found, nil
}

// InvalidateByPrefix removes every key starting with prefix and returns the
// number of distinct keys removed across both tiers.
func (m *Manager) InvalidateByPrefix(ctx context.Context, prefix string) (int, error) {
	n, err := m.removeWhere(ctx, prefix)
	m.rec.CacheInvalidation("prefix", n)
	if n > 0 {
		m.log.Info("Invalidated cache entries by prefix",
			logger.StringField("prefix", prefix), logger.IntField("count", n))
	}
	return n, err
}

// ClearAll empties both tiers and returns the number of distinct keys removed.
func (m *Manager) ClearAll(ctx context.Context) (int, error) {
	n, err := m.removeWhere(ctx, "")
	m.rec.CacheInvalidation("clear", n)
	m.log.Info("Cleared cache", logger.IntField("count", n))
	return n, err
}

// removeWhere drops every memory entry and persisted key under prefix. Delete
// failures are aggregated; the count covers what was removed.
func (m *Manager) removeWhere(ctx context.Context, prefix string) (int, error) {
	removed := make(map[string]struct{})

	m.mu.Lock()
	for _, k := range m.memory.removeIf(func(k string, _ memEntry) bool { return strings.HasPrefix(k, prefix) }) {
		removed[k] = struct{}{}
	}
	left := m.memory.len()
	m.mu.Unlock()
	m.rec.CacheMemoryEntries(left)

	keys, err := m.disk.keys(ctx, prefix)
	if err != nil {
		return len(removed), fmt.Errorf("list cache files: %w", err)
	}
	var result error
	for _, k := range keys {
		if err := m.disk.remove(ctx, k); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %q: %w", k, err))
			continue
		}
		removed[k] = struct{}{}
	}
	m.settle(func(k string) bool { return strings.HasPrefix(k, prefix) })
	return len(removed), result
}

// SweepExpired removes every expired entry from both tiers, plus corrupt
// persistent files, and returns the number of distinct keys removed.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	now := m.now()
	removed := make(map[string]struct{})

	m.mu.Lock()
	for _, k := range m.memory.removeIf(func(_ string, e memEntry) bool { return m.expired(e.ts, now) }) {
		removed[k] = struct{}{}
	}
	left := m.memory.len()
	m.mu.Unlock()
	m.rec.CacheMemoryEntries(left)

	keys, err := m.disk.keys(ctx, "")
	if err != nil {
		return len(removed), fmt.Errorf("list cache files: %w", err)
	}
	var result error
	for _, k := range keys {
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		data, err := m.disk.read(ctx, k)
		if err != nil {
			if !errors.Is(err, storage.ErrNotExist) {
				result = multierror.Append(result, fmt.Errorf("read %q: %w", k, err))
			}
			continue
		}
		ts, _, err := decodeRecord(data)
		switch {
		case err != nil:
			m.rec.CacheCorruptEntry()
			m.log.Warn("Removing corrupt cache file", logger.StringField("key", k), logger.ErrorField(err))
		case m.expired(ts, now):
		default:
			continue
		}
		if err := m.disk.remove(ctx, k); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove %q: %w", k, err))
			continue
		}
		removed[k] = struct{}{}
	}
	m.settle(func(k string) bool {
		_, ok := removed[k]
		return ok
	})

	m.rec.CacheInvalidation("expired", len(removed))
	return len(removed), result
}

// Stats returns a snapshot of counters and the memory tier size.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.MemoryEntries = m.memory.len()
	return s
}

// MemoryKeys lists the keys currently held in memory, sorted.
func (m *Manager) MemoryKeys() []string {
	m.mu.Lock()
	keys := m.memory.keys()
	m.mu.Unlock()
	sort.Strings(keys)
	return keys
}
