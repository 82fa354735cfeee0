/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"go.uber.org/atomic"

	cachekit "github.com/acronis/go-cachekit"
)

type entry struct {
	key   string
	value interface{}
}

// MemoryBackend is a bounded in-process implementation of cachekit.Backend.
// Entries are ordered by recency of use, and when the bound is reached,
// the least recently used entry is evicted. Expired entries are removed
// lazily on access and swept out opportunistically: any operation that finds
// the sweep interval elapsed scans the expiry index and drops dead entries,
// so no background goroutine is required (but see RunPeriodicCleanup).
type MemoryBackend struct {
	maxEntries    int
	defaultTTL    time.Duration
	sweepInterval time.Duration

	mu        sync.Mutex
	lruList   *list.List
	entries   map[string]*list.Element // map of cache entries, value is a lruList element
	expiresAt map[string]time.Time     // expiry index, keys without TTL are absent
	lastSweep time.Time

	initialized atomic.Bool
	now         func() time.Time

	metricsCollector MetricsCollector
}

var _ cachekit.Backend = (*MemoryBackend)(nil)

// New creates a new MemoryBackend with the provided configuration and metrics collector.
// Metrics collector may be nil, in this case metrics will be disabled.
// The backend must be initialized before use.
func New(cfg *cachekit.MemoryConfig, metricsCollector MetricsCollector) (*MemoryBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	return &MemoryBackend{
		maxEntries:       cfg.MaxEntries,
		defaultTTL:       time.Duration(cfg.DefaultTTL),
		sweepInterval:    time.Duration(cfg.SweepInterval),
		lruList:          list.New(),
		entries:          make(map[string]*list.Element),
		expiresAt:        make(map[string]time.Time),
		now:              time.Now,
		metricsCollector: metricsCollector,
	}, nil
}

// Initialize prepares the backend for use. Implements cachekit.Backend.
func (b *MemoryBackend) Initialize(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSweep = b.now()
	b.initialized.Store(true)
	return nil
}

// Shutdown drops all entries and makes the backend unusable. Implements cachekit.Backend.
func (b *MemoryBackend) Shutdown(_ context.Context) error {
	b.initialized.Store(false)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
	return nil
}

// Get returns the value stored under key, if present and not expired,
// and marks the key as most recently used. Implements cachekit.Backend.
func (b *MemoryBackend) Get(_ context.Context, key string) (interface{}, bool) {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepIfNeededLocked()
	return b.getLocked(key, true)
}

// GetMany returns the values for all requested keys that are present and not expired.
// Implements cachekit.Backend.
func (b *MemoryBackend) GetMany(_ context.Context, keys []string) map[string]interface{} {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepIfNeededLocked()
	result := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		if value, ok := b.getLocked(key, true); ok {
			result[key] = value
		}
	}
	return result
}

// Set stores value under key. Non-positive ttl falls back to the configured
// default TTL; if that is zero too, the entry never expires by time.
// Implements cachekit.Backend.
func (b *MemoryBackend) Set(_ context.Context, key string, value interface{}, ttl time.Duration) {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepIfNeededLocked()
	b.setLocked(key, value, ttl)
}

// SetMany stores all items with the same ttl. Implements cachekit.Backend.
func (b *MemoryBackend) SetMany(_ context.Context, items map[string]interface{}, ttl time.Duration) {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepIfNeededLocked()
	for key, value := range items {
		b.setLocked(key, value, ttl)
	}
}

// Delete removes the entry under key and reports whether a live entry was removed.
// Implements cachekit.Backend.
func (b *MemoryBackend) Delete(_ context.Context, key string) bool {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.entries[key]
	if !ok {
		return false
	}
	expired := b.expiredLocked(key)
	b.removeElemLocked(key, elem)
	b.metricsCollector.SetAmount(len(b.entries))
	return !expired
}

// DeleteMany removes the given keys and returns the number of live entries removed.
// Implements cachekit.Backend.
func (b *MemoryBackend) DeleteMany(ctx context.Context, keys []string) int {
	removed := 0
	for _, key := range keys {
		if b.Delete(ctx, key) {
			removed++
		}
	}
	return removed
}

// Exists reports whether a live entry is stored under key without touching its recency.
// Implements cachekit.Backend.
func (b *MemoryBackend) Exists(_ context.Context, key string) bool {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.getLocked(key, false)
	return ok
}

// Incr atomically adds amount to the counter stored under key.
// The whole read-increment-store sequence runs under the backend mutex,
// so concurrent increments never observe the same pre-increment value.
// A key holding a non-integer value is reset to opts.Default first; this is
// a recovery path for corrupted counters, not a silent success.
// Implements cachekit.Backend.
func (b *MemoryBackend) Incr(_ context.Context, key string, amount int64, opts cachekit.IncrOptions) int64 {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sweepIfNeededLocked()

	cur := opts.Default
	fresh := true
	if value, ok := b.getLocked(key, false); ok {
		if n, isInt := toInt64(value); isInt {
			cur = n
			fresh = false
		}
	}

	newVal := cur + amount
	if fresh {
		b.setLocked(key, newVal, opts.TTL)
		return newVal
	}
	// The counter key is live, keep its expiration as is.
	elem := b.entries[key]
	elem.Value = &entry{key: key, value: newVal}
	b.lruList.MoveToFront(elem)
	return newVal
}

// Decr is Incr with a negated amount. Implements cachekit.Backend.
func (b *MemoryBackend) Decr(ctx context.Context, key string, amount int64, opts cachekit.IncrOptions) int64 {
	return b.Incr(ctx, key, -amount, opts)
}

// InvalidatePattern removes every live key matching the glob pattern
// ("*" matches any sequence, "?" exactly one character) and returns the number
// of removed keys. It is O(n) in the backend size.
// Implements cachekit.Backend.
func (b *MemoryBackend) InvalidatePattern(_ context.Context, pattern string) int {
	b.requireInitialized()
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, elem := range b.entries {
		if b.expiredLocked(key) {
			b.removeElemLocked(key, elem)
			continue
		}
		if matcher.Match(key) {
			b.removeElemLocked(key, elem)
			removed++
		}
	}
	b.metricsCollector.SetAmount(len(b.entries))
	return removed
}

// Clear removes all entries. Implements cachekit.Backend.
func (b *MemoryBackend) Clear(_ context.Context) {
	b.requireInitialized()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
}

// Len returns the number of physically stored entries, including not yet
// collected expired ones.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// RunPeriodicCleanup runs a cycle of periodic cleanup of expired entries.
// It is an alternative to the opportunistic in-write sweep for backends that
// are rarely written to. It's supposed to be run in a separate goroutine and
// stops when ctx is canceled.
func (b *MemoryBackend) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			b.sweepLocked(b.now())
			b.mu.Unlock()
		}
	}
}

func (b *MemoryBackend) requireInitialized() {
	if !b.initialized.Load() {
		panic("memcache: backend is not initialized")
	}
}

func (b *MemoryBackend) getLocked(key string, touch bool) (interface{}, bool) {
	elem, ok := b.entries[key]
	if !ok {
		b.metricsCollector.IncMisses()
		return nil, false
	}
	if b.expiredLocked(key) {
		b.removeElemLocked(key, elem)
		b.metricsCollector.SetAmount(len(b.entries))
		b.metricsCollector.AddExpirations(1)
		b.metricsCollector.IncMisses()
		return nil, false
	}
	if touch {
		b.lruList.MoveToFront(elem)
	}
	b.metricsCollector.IncHits()
	return elem.Value.(*entry).value, true
}

func (b *MemoryBackend) setLocked(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	if elem, ok := b.entries[key]; ok {
		elem.Value = &entry{key: key, value: value}
		b.lruList.MoveToFront(elem)
	} else {
		if len(b.entries) >= b.maxEntries {
			b.evictOldestLocked()
		}
		b.entries[key] = b.lruList.PushFront(&entry{key: key, value: value})
	}

	if ttl > 0 {
		b.expiresAt[key] = b.now().Add(ttl)
	} else {
		delete(b.expiresAt, key)
	}
	b.metricsCollector.SetAmount(len(b.entries))
}

func (b *MemoryBackend) expiredLocked(key string) bool {
	exp, ok := b.expiresAt[key]
	return ok && !b.now().Before(exp)
}

func (b *MemoryBackend) removeElemLocked(key string, elem *list.Element) {
	b.lruList.Remove(elem)
	delete(b.entries, key)
	delete(b.expiresAt, key)
}

func (b *MemoryBackend) evictOldestLocked() {
	elem := b.lruList.Back()
	if elem == nil {
		return
	}
	key := elem.Value.(*entry).key
	b.removeElemLocked(key, elem)
	b.metricsCollector.AddEvictions(1)
}

func (b *MemoryBackend) clearLocked() {
	b.entries = make(map[string]*list.Element)
	b.expiresAt = make(map[string]time.Time)
	b.lruList.Init()
	b.metricsCollector.SetAmount(0)
}

func (b *MemoryBackend) sweepIfNeededLocked() {
	if b.sweepInterval <= 0 {
		return
	}
	now := b.now()
	if now.Sub(b.lastSweep) < b.sweepInterval {
		return
	}
	b.lastSweep = now
	b.sweepLocked(now)
}

func (b *MemoryBackend) sweepLocked(now time.Time) {
	expired := 0
	for key, exp := range b.expiresAt {
		if now.Before(exp) {
			continue
		}
		if elem, ok := b.entries[key]; ok {
			b.removeElemLocked(key, elem)
			expired++
		}
	}
	if expired > 0 {
		b.metricsCollector.SetAmount(len(b.entries))
		b.metricsCollector.AddExpirations(expired)
	}
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	default:
		return 0, false
	}
}
