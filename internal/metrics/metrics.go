// Package metrics exposes the engine's Prometheus instruments.
//
// Every method is safe on a nil *Metrics, so components can be built without
// metrics (tests, the CLI) and still call them unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commit_streak"

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared"
)

type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamRetries  prometheus.Counter
	quotaRemaining   prometheus.Gauge
	quotaWaits       prometheus.Counter
	quotaWaitSeconds prometheus.Counter
	repoFailures     prometheus.Counter
	fetchDuration    prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	streakRefreshes  *prometheus.CounterVec
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		upstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "GitHub API requests by outcome.",
		}, []string{"outcome"}),
		upstreamRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "GitHub API requests retried after a transient failure.",
		}),
		quotaRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Last observed remaining GitHub API quota.",
		}),
		quotaWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_waits_total",
			Help:      "Times a request waited for the quota window to reset.",
		}),
		quotaWaitSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_wait_seconds_total",
			Help:      "Seconds spent waiting for quota resets.",
		}),
		repoFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_failures_total",
			Help:      "Repositories whose commits could not be fetched.",
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a full multi-repository fetch.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "day_cache_lookups_total",
			Help:      "Day cache lookups by result (hit, miss, shared).",
		}, []string{"result"}),
		streakRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_refreshes_total",
			Help:      "Streak refreshes by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) UpstreamRequest(outcome string) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) UpstreamRetry() {
	if m == nil {
		return
	}
	m.upstreamRetries.Inc()
}

func (m *Metrics) QuotaRemaining(n int) {
	if m == nil {
		return
	}
	m.quotaRemaining.Set(float64(n))
}

func (m *Metrics) QuotaWait(d time.Duration) {
	if m == nil {
		return
	}
	m.quotaWaits.Inc()
	m.quotaWaitSeconds.Add(d.Seconds())
}

func (m *Metrics) RepoFailure() {
	if m == nil {
		return
	}
	m.repoFailures.Inc()
}

func (m *Metrics) FetchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) StreakRefresh(outcome string) {
	if m == nil {
		return
	}
	m.streakRefreshes.WithLabelValues(outcome).Inc()
}
