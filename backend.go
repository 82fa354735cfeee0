/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cachekit

import (
	"context"
	"time"
)

// Backend is the capability set every cache backend implements.
// All methods may be called concurrently.
//
// TTL semantics are shared by all implementations: ttl > 0 makes the entry
// expire after that duration, ttl <= 0 stores the entry without time-based
// expiration (it may still be evicted for size by bounded backends). An entry
// whose expiration has passed is logically absent even if it is still
// physically present; Get and Exists never return such an entry.
//
// Except for Initialize and Shutdown, methods never report backend failures
// as errors. A failed Get is a miss, a failed Delete reports false, a failed
// Incr reports 0. Calling any data operation on a backend that has not been
// initialized (or was shut down) is a contract violation and panics.
type Backend interface {
	// Get returns the value stored under key, if present and not expired.
	Get(ctx context.Context, key string) (value interface{}, ok bool)

	// GetMany returns the values for all requested keys that are present and
	// not expired. Missing keys are simply absent from the result.
	GetMany(ctx context.Context, keys []string) map[string]interface{}

	// Set stores value under key, replacing any previous value and its
	// expiration, and touches the key's recency.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)

	// SetMany stores all items with the same ttl.
	SetMany(ctx context.Context, items map[string]interface{}, ttl time.Duration)

	// Delete removes the entry under key and reports whether a live
	// (non-expired) entry was removed.
	Delete(ctx context.Context, key string) bool

	// DeleteMany removes the given keys and returns the number of live
	// entries that were removed.
	DeleteMany(ctx context.Context, keys []string) int

	// Exists reports whether a live entry is stored under key.
	// Unlike Get, it does not touch the key's recency.
	Exists(ctx context.Context, key string) bool

	// Incr atomically adds amount to the integer counter stored under key and
	// returns the new value. An absent key, or a key holding a non-integer
	// value, is first reset to opts.Default. Two concurrent increments of the
	// same key never observe the same pre-increment value.
	Incr(ctx context.Context, key string, amount int64, opts IncrOptions) int64

	// Decr is Incr with a negated amount.
	Decr(ctx context.Context, key string, amount int64, opts IncrOptions) int64

	// InvalidatePattern removes every live key matching the shell-style glob
	// pattern ('*' matches any run of characters, '?' matches one character)
	// and returns the number of removed keys.
	InvalidatePattern(ctx context.Context, pattern string) int

	// Clear removes all entries.
	Clear(ctx context.Context)

	// Initialize prepares the backend for use. For networked backends it
	// probes connectivity and fails fast if the store is unreachable.
	Initialize(ctx context.Context) error

	// Shutdown releases the backend's resources. The backend must not be
	// used afterwards.
	Shutdown(ctx context.Context) error
}

// IncrOptions holds the optional parameters of Backend.Incr and Backend.Decr.
type IncrOptions struct {
	// Default is the value the counter is reset to when the key is absent or
	// does not hold an integer. The returned value is Default plus the
	// increment amount in that case.
	Default int64

	// TTL is applied when the increment creates the key. Incrementing an
	// existing counter does not change its expiration.
	TTL time.Duration
}
