/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	cachekit "github.com/acronis/go-cachekit"
)

func newTestBackend(t *testing.T, cfg *cachekit.MemoryConfig) (*MemoryBackend, func(d time.Duration)) {
	t.Helper()
	backend, err := New(cfg, nil)
	require.NoError(t, err)
	cur := time.Now()
	backend.now = func() time.Time { return cur }
	require.NoError(t, backend.Initialize(context.Background()))
	advance := func(d time.Duration) { cur = cur.Add(d) }
	return backend, advance
}

func TestMemoryBackendGetSet(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	_, ok := backend.Get(ctx, "user:1")
	require.False(t, ok)

	backend.Set(ctx, "user:1", "Bob", 0)
	value, ok := backend.Get(ctx, "user:1")
	require.True(t, ok)
	require.Equal(t, "Bob", value)

	// Entries without TTL survive arbitrarily long waits.
	advance(time.Hour * 24 * 365)
	value, ok = backend.Get(ctx, "user:1")
	require.True(t, ok)
	require.Equal(t, "Bob", value)

	// Overwrite replaces the value.
	backend.Set(ctx, "user:1", "John", 0)
	value, ok = backend.Get(ctx, "user:1")
	require.True(t, ok)
	require.Equal(t, "John", value)
}

func TestMemoryBackendTTL(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	backend.Set(ctx, "session:1", "token", time.Second*10)

	value, ok := backend.Get(ctx, "session:1")
	require.True(t, ok)
	require.Equal(t, "token", value)

	advance(time.Second * 11)
	_, ok = backend.Get(ctx, "session:1")
	require.False(t, ok)
	require.Equal(t, 0, backend.Len(), "expired entry should be removed lazily on read")
}

func TestMemoryBackendTTLOverwrite(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	backend.Set(ctx, "k", "v1", time.Second*5)
	backend.Set(ctx, "k", "v2", 0) // overwrite clears the expiry

	advance(time.Second * 10)
	value, ok := backend.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v2", value)
}

func TestMemoryBackendDefaultTTL(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{
		MaxEntries: 100,
		DefaultTTL: config.TimeDuration(time.Minute),
	})

	backend.Set(ctx, "k", "v", 0)
	advance(time.Minute + time.Second)
	_, ok := backend.Get(ctx, "k")
	require.False(t, ok)
}

func TestMemoryBackendLRUEvictionOrder(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 2})

	backend.Set(ctx, "a", 1, 0)
	backend.Set(ctx, "b", 2, 0)

	_, ok := backend.Get(ctx, "a") // touches "a", "b" becomes the LRU key
	require.True(t, ok)

	backend.Set(ctx, "c", 3, 0)

	_, ok = backend.Get(ctx, "b")
	require.False(t, ok, "least recently used key should be evicted")
	_, ok = backend.Get(ctx, "a")
	require.True(t, ok)
	_, ok = backend.Get(ctx, "c")
	require.True(t, ok)
}

func TestMemoryBackendEvictionBound(t *testing.T) {
	ctx := context.Background()
	const maxEntries = 7
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: maxEntries})

	for i := 0; i < 100; i++ {
		backend.Set(ctx, string(rune('a'+i%26))+string(rune('0'+i%10)), i, 0)
		require.LessOrEqual(t, backend.Len(), maxEntries)
	}
}

func TestMemoryBackendExistsDoesNotTouchRecency(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 2})

	backend.Set(ctx, "a", 1, 0)
	backend.Set(ctx, "b", 2, 0)
	require.True(t, backend.Exists(ctx, "a"))

	backend.Set(ctx, "c", 3, 0)
	require.False(t, backend.Exists(ctx, "a"), "Exists should not protect a key from eviction")
	require.True(t, backend.Exists(ctx, "b"))

	backend.Set(ctx, "d", 4, time.Second)
	advance(time.Second * 2)
	require.False(t, backend.Exists(ctx, "d"), "Exists should apply the expiry check")
}

func TestMemoryBackendDelete(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	require.False(t, backend.Delete(ctx, "missing"))

	backend.Set(ctx, "k", "v", 0)
	require.True(t, backend.Delete(ctx, "k"))
	require.False(t, backend.Delete(ctx, "k"))

	backend.Set(ctx, "expiring", "v", time.Second)
	advance(time.Second * 2)
	require.False(t, backend.Delete(ctx, "expiring"), "deleting a dead entry should report false")
	require.Equal(t, 0, backend.Len())
}

func TestMemoryBackendBatchOps(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	backend.SetMany(ctx, map[string]interface{}{"a": 1, "b": 2, "c": 3}, 0)

	got := backend.GetMany(ctx, []string{"a", "b", "missing"})
	require.Equal(t, map[string]interface{}{"a": 1, "b": 2}, got)

	require.Equal(t, 2, backend.DeleteMany(ctx, []string{"a", "c", "missing"}))
	require.Equal(t, 1, backend.Len())
}

func TestMemoryBackendIncrDecr(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	// Absent key is initialized to the default first.
	require.EqualValues(t, 11, backend.Incr(ctx, "ctr", 1, cachekit.IncrOptions{Default: 10}))
	require.EqualValues(t, 12, backend.Incr(ctx, "ctr", 1, cachekit.IncrOptions{Default: 10}))
	require.EqualValues(t, 10, backend.Decr(ctx, "ctr", 2, cachekit.IncrOptions{}))

	// A non-integer value under the key is reset to the default.
	backend.Set(ctx, "broken", "not a number", 0)
	require.EqualValues(t, 1, backend.Incr(ctx, "broken", 1, cachekit.IncrOptions{}))
}

func TestMemoryBackendIncrTTL(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	backend.Incr(ctx, "win", 1, cachekit.IncrOptions{TTL: time.Second * 30})
	advance(time.Second * 10)
	// Incrementing an existing counter must not extend its expiration.
	backend.Incr(ctx, "win", 1, cachekit.IncrOptions{TTL: time.Second * 30})
	advance(time.Second * 21)
	require.EqualValues(t, 1, backend.Incr(ctx, "win", 1, cachekit.IncrOptions{}))
}

func TestMemoryBackendIncrConcurrent(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	const goroutines = 20
	const incrsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < incrsPerGoroutine; j++ {
				backend.Incr(ctx, "ctr", 1, cachekit.IncrOptions{})
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, goroutines*incrsPerGoroutine, backend.Incr(ctx, "ctr", 0, cachekit.IncrOptions{}))
}

func TestMemoryBackendInvalidatePattern(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	backend.Set(ctx, "user:1:profile", "p1", 0)
	backend.Set(ctx, "user:2:profile", "p2", 0)
	backend.Set(ctx, "order:1", "o1", 0)
	backend.Set(ctx, "order:10", "o10", 0)

	require.Equal(t, 2, backend.InvalidatePattern(ctx, "user:*:profile"))
	require.False(t, backend.Exists(ctx, "user:1:profile"))
	require.False(t, backend.Exists(ctx, "user:2:profile"))
	require.True(t, backend.Exists(ctx, "order:1"))

	require.Equal(t, 0, backend.InvalidatePattern(ctx, "user:*:profile"))

	// "?" matches exactly one character, so "order:10" must survive.
	require.Equal(t, 1, backend.InvalidatePattern(ctx, "order:?"))
	require.False(t, backend.Exists(ctx, "order:1"))
	require.True(t, backend.Exists(ctx, "order:10"))
}

func TestMemoryBackendSweep(t *testing.T) {
	ctx := context.Background()
	backend, advance := newTestBackend(t, &cachekit.MemoryConfig{
		MaxEntries:    100,
		SweepInterval: config.TimeDuration(time.Second * 30),
	})

	backend.Set(ctx, "short", "v", time.Second)
	backend.Set(ctx, "long", "v", time.Hour)
	backend.Set(ctx, "forever", "v", 0)
	require.Equal(t, 3, backend.Len())

	// The sweep interval has not elapsed yet, the expired entry stays physically present.
	advance(time.Second * 2)
	backend.Set(ctx, "other", "v", 0)
	require.Equal(t, 4, backend.Len())

	// Any write past the interval sweeps it out without the key being read.
	advance(time.Second * 29)
	backend.Set(ctx, "another", "v", 0)
	require.Equal(t, 4, backend.Len())
	require.True(t, backend.Exists(ctx, "long"))
	require.True(t, backend.Exists(ctx, "forever"))
}

func TestMemoryBackendRunPeriodicCleanup(t *testing.T) {
	ctx := context.Background()
	backend, err := New(&cachekit.MemoryConfig{MaxEntries: 100}, nil)
	require.NoError(t, err)
	require.NoError(t, backend.Initialize(ctx))

	backend.Set(ctx, "short", "v", time.Millisecond*20)
	backend.Set(ctx, "forever", "v", 0)

	cleanupCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		backend.RunPeriodicCleanup(cleanupCtx, time.Millisecond*10)
	}()

	require.Eventually(t, func() bool { return backend.Len() == 1 }, time.Second, time.Millisecond*10)
	cancel()
	<-done
}

func TestMemoryBackendClearAndShutdown(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t, &cachekit.MemoryConfig{MaxEntries: 100})

	backend.Set(ctx, "a", 1, 0)
	backend.Set(ctx, "b", 2, 0)
	backend.Clear(ctx)
	require.Equal(t, 0, backend.Len())

	backend.Set(ctx, "a", 1, 0)
	require.NoError(t, backend.Shutdown(ctx))
	require.Panics(t, func() { backend.Get(ctx, "a") })
}

func TestMemoryBackendNotInitialized(t *testing.T) {
	backend, err := New(&cachekit.MemoryConfig{MaxEntries: 10}, nil)
	require.NoError(t, err)
	require.Panics(t, func() { backend.Set(context.Background(), "k", "v", 0) })
}

func TestMemoryBackendInvalidConfig(t *testing.T) {
	_, err := New(&cachekit.MemoryConfig{MaxEntries: 0}, nil)
	require.Error(t, err)
	_, err = New(&cachekit.MemoryConfig{MaxEntries: 10, DefaultTTL: config.TimeDuration(-time.Second)}, nil)
	require.Error(t, err)
}

func TestMemoryBackendMetrics(t *testing.T) {
	ctx := context.Background()
	pm := NewPrometheusMetrics()
	backend, err := New(&cachekit.MemoryConfig{MaxEntries: 2}, pm)
	require.NoError(t, err)
	require.NoError(t, backend.Initialize(ctx))

	backend.Set(ctx, "a", 1, 0)
	backend.Set(ctx, "b", 2, 0)
	backend.Get(ctx, "a")
	backend.Get(ctx, "missing")
	backend.Set(ctx, "c", 3, 0) // evicts "b"

	require.Equal(t, float64(2), testutil.ToFloat64(pm.EntriesAmount))
	require.Equal(t, float64(1), testutil.ToFloat64(pm.HitsTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(pm.MissesTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(pm.EvictionsTotal))
}
