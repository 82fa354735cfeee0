/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of rate limiting metrics.
type MetricsCollector interface {
	// IncAllows increments the total number of allowed checks.
	IncAllows()

	// IncRejects increments the total number of limited checks.
	IncRejects()

	// IncFallbacks increments the total number of checks that fell back to
	// the local sliding window because the counter backend was unusable.
	IncFallbacks()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the rate limiter.
type PrometheusMetrics struct {
	AllowsTotal    prometheus.Counter
	RejectsTotal   prometheus.Counter
	FallbacksTotal prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		AllowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_allows_total",
			Help:        "Number of checks that allowed the request.",
			ConstLabels: opts.ConstLabels,
		}),
		RejectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_rejects_total",
			Help:        "Number of checks that reported the request as rate limited.",
			ConstLabels: opts.ConstLabels,
		}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_fallbacks_total",
			Help:        "Number of checks that fell back to the local sliding window.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.AllowsTotal, pm.RejectsTotal, pm.FallbacksTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AllowsTotal)
	prometheus.Unregister(pm.RejectsTotal)
	prometheus.Unregister(pm.FallbacksTotal)
}

// IncAllows increments the total number of allowed checks.
func (pm *PrometheusMetrics) IncAllows() {
	pm.AllowsTotal.Inc()
}

// IncRejects increments the total number of limited checks.
func (pm *PrometheusMetrics) IncRejects() {
	pm.RejectsTotal.Inc()
}

// IncFallbacks increments the total number of fallbacks to the local window.
func (pm *PrometheusMetrics) IncFallbacks() {
	pm.FallbacksTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncAllows()    {}
func (disabledMetrics) IncRejects()   {}
func (disabledMetrics) IncFallbacks() {}
