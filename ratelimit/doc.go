/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides a request rate limiter built on the cachekit
// counter primitives: fixed-window counting in a shared backend with an
// exact, process-local sliding-window fallback when the backend is unusable.
// The check itself never fails; an infrastructure outage only degrades
// window-boundary precision.
package ratelimit
