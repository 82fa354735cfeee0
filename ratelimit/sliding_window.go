/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"sync"
	"time"
)

const windowStatesPruneInterval = time.Minute

// slidingWindowLimiter is the local fallback counting algorithm: a true
// sliding window that keeps, per base key, the per-second hit counts within
// the window span. It is exact (no boundary bursts) at the cost of more
// state, and its state is process-local.
type slidingWindowLimiter struct {
	mu        sync.Mutex
	states    map[string]*windowState
	lastPrune time.Time
}

type windowState struct {
	hits    map[int64]int64 // unix second -> number of hits at that second
	lastHit int64
	span    time.Duration
}

func newSlidingWindowLimiter() *slidingWindowLimiter {
	return &slidingWindowLimiter{states: make(map[string]*windowState)}
}

// hit records a hit for key at now and returns the total number of hits
// within (now-span, now].
func (s *slidingWindowLimiter) hit(key string, now time.Time, span time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneIfNeededLocked(now)

	state, ok := s.states[key]
	if !ok {
		state = &windowState{hits: make(map[int64]int64)}
		s.states[key] = state
	}

	nowSec := now.Unix()
	cutoff := nowSec - int64(span/time.Second)
	for ts := range state.hits {
		if ts <= cutoff {
			delete(state.hits, ts)
		}
	}

	state.hits[nowSec]++
	state.lastHit = nowSec
	state.span = span

	var total int64
	for _, hits := range state.hits {
		total += hits
	}
	return total
}

// pruneIfNeededLocked drops states whose whole window has passed, so keys
// that stopped sending requests do not accumulate forever.
func (s *slidingWindowLimiter) pruneIfNeededLocked(now time.Time) {
	if !s.lastPrune.IsZero() && now.Sub(s.lastPrune) < windowStatesPruneInterval {
		return
	}
	s.lastPrune = now
	for key, state := range s.states {
		if now.Unix()-state.lastHit > int64(state.span/time.Second) {
			delete(s.states, key)
		}
	}
}
