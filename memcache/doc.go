/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package memcache provides a bounded in-process cache backend with true LRU
// eviction and lazy plus periodic TTL expiry. It implements cachekit.Backend
// and never blocks on I/O; all operations run under a single per-backend
// mutex and are O(1) amortized, except pattern invalidation and the sweep,
// which are O(n) in the backend size.
package memcache
