/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"

	cachekit "github.com/acronis/go-cachekit"
)

const scanBatchSize = 100

// RedisBackend is a thin adapter implementing cachekit.Backend on top of a
// Redis server. Every key is namespaced with the configured prefix, TTL is
// delegated to Redis native expiry, and values are serialized to an opaque
// byte encoding (integers are kept in plain decimal form so that Redis can
// apply INCRBY to them).
//
// Initialize probes connectivity and fails fast if the server is unreachable;
// all subsequent per-operation failures are logged and converted to the
// best-effort sentinel behavior of the contract.
type RedisBackend struct {
	client     redis.UniversalClient
	ownsClient bool

	addr        string
	keyPrefix   string
	serializer  Serializer
	initTimeout time.Duration

	initialized atomic.Bool
	logger      log.FieldLogger
}

var _ cachekit.Backend = (*RedisBackend)(nil)

// New creates a new RedisBackend connecting to the server from the provided
// configuration. Logger may be nil, in this case logging will be disabled.
// The backend must be initialized before use.
func New(cfg *cachekit.RedisConfig, logger log.FieldLogger) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: time.Duration(cfg.DialTimeout),
	})
	backend, err := NewWithClient(cfg, client, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	backend.ownsClient = true
	return backend, nil
}

// NewWithClient creates a new RedisBackend on top of an already constructed
// client. The caller keeps the ownership of the client, Shutdown will not
// close it.
func NewWithClient(cfg *cachekit.RedisConfig, client redis.UniversalClient, logger log.FieldLogger) (*RedisBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	serializer, err := NewSerializer(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &RedisBackend{
		client:      client,
		addr:        cfg.Addr,
		keyPrefix:   cfg.KeyPrefix,
		serializer:  serializer,
		initTimeout: time.Duration(cfg.InitTimeout),
		logger:      logger,
	}, nil
}

// Initialize pings the Redis server, retrying with exponential backoff within
// the configured init timeout, and returns an error if it stays unreachable.
// Implements cachekit.Backend.
func (b *RedisBackend) Initialize(ctx context.Context) error {
	if b.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.initTimeout)
		defer cancel()
	}
	err := backoff.Retry(func() error {
		return b.client.Ping(ctx).Err()
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
	if err != nil {
		return fmt.Errorf("ping redis at %q: %w", b.addr, err)
	}
	b.initialized.Store(true)
	return nil
}

// Shutdown releases the backend. The underlying client is closed only if it
// was constructed by New. Implements cachekit.Backend.
func (b *RedisBackend) Shutdown(_ context.Context) error {
	b.initialized.Store(false)
	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

// Get returns the value stored under key, if present and not expired.
// Implements cachekit.Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) (interface{}, bool) {
	b.requireInitialized()
	data, err := b.client.Get(ctx, b.prefixedKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.logger.Error("redis cache: failed to get value", log.String("key", key), log.Error(err))
		}
		return nil, false
	}
	value, err := b.decodeValue(data)
	if err != nil {
		b.logger.Error("redis cache: failed to decode value", log.String("key", key), log.Error(err))
		return nil, false
	}
	return value, true
}

// GetMany returns the values for all requested keys that are present and not
// expired. It is a single MGET call. Implements cachekit.Backend.
func (b *RedisBackend) GetMany(ctx context.Context, keys []string) map[string]interface{} {
	b.requireInitialized()
	result := make(map[string]interface{}, len(keys))
	if len(keys) == 0 {
		return result
	}
	prefixedKeys := make([]string, len(keys))
	for i, key := range keys {
		prefixedKeys[i] = b.prefixedKey(key)
	}
	values, err := b.client.MGet(ctx, prefixedKeys...).Result()
	if err != nil {
		b.logger.Error("redis cache: failed to get values", log.Int("keys", len(keys)), log.Error(err))
		return result
	}
	for i, raw := range values {
		data, ok := raw.(string)
		if !ok {
			continue
		}
		value, decErr := b.decodeValue([]byte(data))
		if decErr != nil {
			b.logger.Error("redis cache: failed to decode value", log.String("key", keys[i]), log.Error(decErr))
			continue
		}
		result[keys[i]] = value
	}
	return result
}

// Set stores value under key. Non-positive ttl stores the value without
// expiration. Implements cachekit.Backend.
func (b *RedisBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	b.requireInitialized()
	data, err := b.encodeValue(value)
	if err != nil {
		b.logger.Error("redis cache: failed to encode value", log.String("key", key), log.Error(err))
		return
	}
	if ttl < 0 {
		ttl = 0
	}
	if err = b.client.Set(ctx, b.prefixedKey(key), data, ttl).Err(); err != nil {
		b.logger.Error("redis cache: failed to set value", log.String("key", key), log.Error(err))
	}
}

// SetMany stores all items with the same ttl using a single pipeline.
// Implements cachekit.Backend.
func (b *RedisBackend) SetMany(ctx context.Context, items map[string]interface{}, ttl time.Duration) {
	b.requireInitialized()
	if ttl < 0 {
		ttl = 0
	}
	pipe := b.client.Pipeline()
	for key, value := range items {
		data, err := b.encodeValue(value)
		if err != nil {
			b.logger.Error("redis cache: failed to encode value", log.String("key", key), log.Error(err))
			continue
		}
		pipe.Set(ctx, b.prefixedKey(key), data, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("redis cache: failed to set values", log.Int("items", len(items)), log.Error(err))
	}
}

// Delete removes the entry under key and reports whether a live entry was
// removed. Implements cachekit.Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) bool {
	b.requireInitialized()
	removed, err := b.client.Del(ctx, b.prefixedKey(key)).Result()
	if err != nil {
		b.logger.Error("redis cache: failed to delete key", log.String("key", key), log.Error(err))
		return false
	}
	return removed > 0
}

// DeleteMany removes the given keys and returns the number of live entries
// removed. Implements cachekit.Backend.
func (b *RedisBackend) DeleteMany(ctx context.Context, keys []string) int {
	b.requireInitialized()
	if len(keys) == 0 {
		return 0
	}
	prefixedKeys := make([]string, len(keys))
	for i, key := range keys {
		prefixedKeys[i] = b.prefixedKey(key)
	}
	removed, err := b.client.Del(ctx, prefixedKeys...).Result()
	if err != nil {
		b.logger.Error("redis cache: failed to delete keys", log.Int("keys", len(keys)), log.Error(err))
		return 0
	}
	return int(removed)
}

// Exists reports whether a live entry is stored under key.
// Implements cachekit.Backend.
func (b *RedisBackend) Exists(ctx context.Context, key string) bool {
	b.requireInitialized()
	n, err := b.client.Exists(ctx, b.prefixedKey(key)).Result()
	if err != nil {
		b.logger.Error("redis cache: failed to check key existence", log.String("key", key), log.Error(err))
		return false
	}
	return n > 0
}

// Incr adds amount to the integer counter stored under key using the Redis
// atomic INCRBY. When the key is absent, it is first set to opts.Default with
// opts.TTL via SETNX and then incremented; these two steps are not atomic
// with each other, a race between concurrent callers can double-initialize
// the counter but converges after the first successful increment.
// A key holding a non-integer value is reset to opts.Default plus amount.
// Implements cachekit.Backend.
func (b *RedisBackend) Incr(ctx context.Context, key string, amount int64, opts cachekit.IncrOptions) int64 {
	b.requireInitialized()
	prefixedKey := b.prefixedKey(key)

	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.SetNX(ctx, prefixedKey, opts.Default, ttl).Err(); err != nil {
		b.logger.Error("redis cache: failed to initialize counter", log.String("key", key), log.Error(err))
		return 0
	}

	newValue, err := b.client.IncrBy(ctx, prefixedKey, amount).Result()
	if err == nil {
		return newValue
	}
	if isNotIntegerErr(err) {
		// Recovery path for a corrupted counter, not a silent success.
		b.logger.Warn("redis cache: non-integer counter value, resetting to default",
			log.String("key", key), log.Int64("default", opts.Default))
		resetValue := opts.Default + amount
		if setErr := b.client.Set(ctx, prefixedKey, resetValue, ttl).Err(); setErr != nil {
			b.logger.Error("redis cache: failed to reset counter", log.String("key", key), log.Error(setErr))
			return 0
		}
		return resetValue
	}
	b.logger.Error("redis cache: failed to increment counter", log.String("key", key), log.Error(err))
	return 0
}

// Decr is Incr with a negated amount. Implements cachekit.Backend.
func (b *RedisBackend) Decr(ctx context.Context, key string, amount int64, opts cachekit.IncrOptions) int64 {
	return b.Incr(ctx, key, -amount, opts)
}

// InvalidatePattern removes every key matching the shell-style glob pattern
// and returns the number of removed keys. The pattern is namespaced with the
// backend prefix and evaluated by the Redis SCAN command, whose enumeration
// may be eventually consistent under concurrent writes.
// Implements cachekit.Backend.
func (b *RedisBackend) InvalidatePattern(ctx context.Context, pattern string) int {
	b.requireInitialized()
	return b.deleteByPattern(ctx, b.prefixedKey(pattern))
}

// Clear removes all entries stored under the backend prefix.
// Implements cachekit.Backend.
func (b *RedisBackend) Clear(ctx context.Context) {
	b.requireInitialized()
	b.deleteByPattern(ctx, b.prefixedKey("*"))
}

func (b *RedisBackend) deleteByPattern(ctx context.Context, prefixedPattern string) int {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, prefixedPattern, scanBatchSize).Result()
		if err != nil {
			b.logger.Error("redis cache: failed to scan keys",
				log.String("pattern", prefixedPattern), log.Error(err))
			return removed
		}
		if len(keys) > 0 {
			n, delErr := b.client.Del(ctx, keys...).Result()
			if delErr != nil {
				b.logger.Error("redis cache: failed to delete matched keys",
					log.String("pattern", prefixedPattern), log.Error(delErr))
				return removed
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}

func (b *RedisBackend) requireInitialized() {
	if !b.initialized.Load() {
		panic("rediscache: backend is not initialized")
	}
}

func (b *RedisBackend) prefixedKey(key string) string {
	if b.keyPrefix == "" {
		return key
	}
	return b.keyPrefix + ":" + key
}

// encodeValue keeps integers in plain decimal form (so INCRBY keeps working
// on them) and serializes everything else.
func (b *RedisBackend) encodeValue(value interface{}) ([]byte, error) {
	if n, ok := toInt64(value); ok {
		return strconv.AppendInt(nil, n, 10), nil
	}
	return b.serializer.Marshal(value)
}

func (b *RedisBackend) decodeValue(data []byte) (interface{}, error) {
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		return n, nil
	}
	var value interface{}
	if err := b.serializer.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func isNotIntegerErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not an integer")
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
