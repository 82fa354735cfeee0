/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/acronis/go-appkit/log"

	cachekit "github.com/acronis/go-cachekit"
)

// UserID value used when the request carries no authenticated user.
const AnonymousUserID = "anonymous"

// DefaultKeyPrefix is prepended to all counting keys unless overridden.
const DefaultKeyPrefix = "ratelimit"

// Strategy determines how the counting key is derived from a request.
type Strategy string

// Key derivation strategies.
const (
	StrategyIP       Strategy = "ip"
	StrategyUser     Strategy = "user"
	StrategyCombined Strategy = "combined"
)

// Rule describes a single rate limiting rule. It is immutable once constructed;
// multiple rules may be evaluated for one request (see Limiter.IsRateLimitedByAny).
type Rule struct {
	// RequestsPerWindow is the number of requests allowed within the window.
	RequestsPerWindow int

	// Window is the counting window. It must be a whole number of seconds.
	Window time.Duration

	// Strategy determines how the counting key is derived from a request.
	Strategy Strategy
}

// Request carries the request attributes the key derivation needs.
// Both values are treated as opaque strings.
type Request struct {
	ClientIP string
	UserID   string
}

// Result is the outcome of a rate limit check.
type Result struct {
	Limited bool
	Count   int64
	Limit   int
}

// Counter is the subset of cachekit.Backend the limiter uses for distributed
// counting. A Counter reports failures with a non-positive result, per the
// cachekit sentinel convention.
type Counter interface {
	Incr(ctx context.Context, key string, amount int64, opts cachekit.IncrOptions) int64
}

// Limiter checks requests against rate limiting rules.
//
// When a counter backend is configured, the check is a single atomic
// increment of a fixed-window key (floor(now/window)), which is O(1) at scale
// but admits bursts straddling a window boundary, up to twice the limit in
// the worst case. When the backend is absent or fails, the limiter falls back
// to an exact local sliding window; the fallback is per-process, so it is
// precise only for single-process deployments. The asymmetry is intentional:
// a backend outage degrades precision but never stops enforcing limits and
// never blocks all traffic.
type Limiter struct {
	counter   Counter
	keyPrefix string
	fallback  *slidingWindowLimiter
	now       func() time.Time

	logger           log.FieldLogger
	metricsCollector MetricsCollector
}

// Opts represents options for the Limiter.
type Opts struct {
	// KeyPrefix is prepended to all counting keys. Empty means DefaultKeyPrefix.
	KeyPrefix string

	// Logger may be nil, in this case logging will be disabled.
	Logger log.FieldLogger

	// MetricsCollector may be nil, in this case metrics will be disabled.
	MetricsCollector MetricsCollector
}

// New creates a new Limiter counting in the provided backend.
// Counter may be nil, in this case only the local sliding window is used.
func New(counter Counter) *Limiter {
	return NewWithOpts(counter, Opts{})
}

// NewWithOpts creates a new Limiter with the provided options.
func NewWithOpts(counter Counter, opts Opts) *Limiter {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	return &Limiter{
		counter:          counter,
		keyPrefix:        opts.KeyPrefix,
		fallback:         newSlidingWindowLimiter(),
		now:              time.Now,
		logger:           opts.Logger,
		metricsCollector: opts.MetricsCollector,
	}
}

// KeyForRequest derives the counting key for the request according to the
// rule's strategy. The result is deterministic for identical inputs.
func (l *Limiter) KeyForRequest(req Request, rule Rule) string {
	userID := req.UserID
	if userID == "" {
		userID = AnonymousUserID
	}
	switch rule.Strategy {
	case StrategyUser:
		return l.keyPrefix + ":user:" + userID
	case StrategyCombined:
		return l.keyPrefix + ":combined:" + req.ClientIP + ":" + userID
	default:
		return l.keyPrefix + ":ip:" + req.ClientIP
	}
}

// IsRateLimited counts a hit under key and checks it against the rule.
// It never returns an error: a counter backend failure switches the check
// to the local sliding window for this call.
func (l *Limiter) IsRateLimited(ctx context.Context, key string, rule Rule) Result {
	now := l.now()
	windowSeconds := int64(rule.Window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}

	if l.counter != nil {
		windowKey := key + ":" + strconv.FormatInt(now.Unix()/windowSeconds, 10)
		count := l.counter.Incr(ctx, windowKey, 1, cachekit.IncrOptions{TTL: rule.Window})
		if count > 0 {
			return l.result(count, rule)
		}
		// A non-positive count means the backend failed; the local window
		// keeps enforcing the limit while the backend is unusable.
		l.metricsCollector.IncFallbacks()
		l.logger.Warn("rate limiter: counter backend unusable, falling back to local sliding window",
			log.String("key", key))
	}

	return l.result(l.fallback.hit(key, now, time.Duration(windowSeconds)*time.Second), rule)
}

// IsRateLimitedForRequest derives the key for the request and checks the rule.
func (l *Limiter) IsRateLimitedForRequest(ctx context.Context, req Request, rule Rule) Result {
	return l.IsRateLimited(ctx, l.KeyForRequest(req, rule), rule)
}

// IsRateLimitedByAny evaluates all applicable rules for one request and
// treats it as limited if any rule reports limited. The returned retry-after
// hint is the triggering rule's window; it is zero when the request is allowed.
func (l *Limiter) IsRateLimitedByAny(ctx context.Context, req Request, rules []Rule) (Result, time.Duration) {
	var last Result
	for _, rule := range rules {
		result := l.IsRateLimitedForRequest(ctx, req, rule)
		if result.Limited {
			return result, rule.Window
		}
		last = result
	}
	return last, 0
}

func (l *Limiter) result(count int64, rule Rule) Result {
	limited := count > int64(rule.RequestsPerWindow)
	if limited {
		l.metricsCollector.IncRejects()
	} else {
		l.metricsCollector.IncAllows()
	}
	return Result{Limited: limited, Count: count, Limit: rule.RequestsPerWindow}
}
