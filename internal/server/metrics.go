package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desertthunder/taskdiff/internal/models"
)

// Aggregates folds per-request cache statistics into process-wide totals.
// It is the only comparison state that outlives a request; everything else
// is rebuilt per call.
//
// Prometheus counters mirror every addition but stay cumulative for the
// process lifetime: [Aggregates.Reset] clears the JSON-facing totals only.
type Aggregates struct {
	mu             sync.Mutex
	comparisons    int
	hits           int
	misses         int
	entriesCleared int

	metrics *Metrics
}

// NewAggregates returns zeroed totals, mirroring into metrics when non-nil.
func NewAggregates(metrics *Metrics) *Aggregates {
	return &Aggregates{metrics: metrics}
}

// RecordCacheStats adds one request's cache statistics to the totals. It
// implements [tasks.StatsRecorder].
func (a *Aggregates) RecordCacheStats(stats models.CacheStats) {
	a.mu.Lock()
	a.comparisons++
	a.hits += stats.Hits
	a.misses += stats.Misses
	a.entriesCleared += stats.EntriesCleared
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.ObserveComparison(stats)
	}
}

// AggregateStats is the JSON shape served by GET /cache/stats.
type AggregateStats struct {
	Comparisons         int     `json:"comparisons"`
	TotalHits           int     `json:"total_hits"`
	TotalMisses         int     `json:"total_misses"`
	TotalEntriesCleared int     `json:"total_entries_cleared"`
	HitRatio            float64 `json:"hit_ratio"`
}

// Snapshot returns the current totals.
func (a *Aggregates) Snapshot() AggregateStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	ratio := models.CacheStats{Hits: a.hits, Misses: a.misses}.HitRatio()
	return AggregateStats{
		Comparisons:         a.comparisons,
		TotalHits:           a.hits,
		TotalMisses:         a.misses,
		TotalEntriesCleared: a.entriesCleared,
		HitRatio:            ratio,
	}
}

// Reset zeroes the totals and returns how many comparisons were discarded.
func (a *Aggregates) Reset() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	discarded := a.comparisons
	a.comparisons, a.hits, a.misses, a.entriesCleared = 0, 0, 0, 0
	return discarded
}

// Metrics holds the prometheus instruments on an isolated registry, so the
// /metrics endpoint reports only what this service registers.
type Metrics struct {
	registry *prometheus.Registry

	comparisons    prometheus.Counter
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	entriesCleared prometheus.Counter

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics builds and registers the service's instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		comparisons: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdiff_comparisons_total",
			Help: "Completed comparison requests.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdiff_cache_hits_total",
			Help: "Request cache hits across all comparisons.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdiff_cache_misses_total",
			Help: "Request cache misses across all comparisons.",
		}),
		entriesCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdiff_cache_entries_cleared_total",
			Help: "Entries discarded when request caches were cleared.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdiff_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskdiff_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.comparisons,
		m.cacheHits,
		m.cacheMisses,
		m.entriesCleared,
		m.requests,
		m.duration,
	)
	return m
}

// ObserveComparison mirrors one request's cache statistics into the counters.
func (m *Metrics) ObserveComparison(stats models.CacheStats) {
	m.comparisons.Inc()
	m.cacheHits.Add(float64(stats.Hits))
	m.cacheMisses.Add(float64(stats.Misses))
	m.entriesCleared.Add(float64(stats.EntriesCleared))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(route, code).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Middleware records request counts and latency for every matched route.
// The route label uses the registered mux pattern, not the raw URL, to keep
// label cardinality bounded.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}
			m.ObserveRequest(route, rec.status, time.Since(start))
		})
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
