/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package rediscache provides a Redis-backed implementation of
// cachekit.Backend. A cache miss is indistinguishable from a Redis failure:
// both read as "not present", and the failure is logged. Callers must be
// able to recompute cached values.
package rediscache
