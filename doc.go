/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package cachekit provides a pluggable key-value cache contract with TTL and
// bounded-size eviction, together with configuration for the backends that
// implement it (see subpackages memcache and rediscache) and a request rate
// limiter built on the same counter primitives (see subpackage ratelimit).
//
// All cache operations are best-effort: runtime failures are reported via
// sentinel return values (false, nil, 0) instead of errors, so a cache outage
// degrades to cache misses rather than failing the caller's request. Only
// initialization-time failures and contract violations (using a backend that
// was not initialized) cross the API boundary as errors or panics.
package cachekit
