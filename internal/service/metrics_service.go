package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-gradebook/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	cacheLatency        prometheus.Observer
	cacheWrite          prometheus.Observer
	cacheHitRatio       prometheus.Gauge
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	fetchDuration       *prometheus.HistogramVec
	fetchFailures       *prometheus.CounterVec
	aggregationDuration *prometheus.HistogramVec
	orphanRecords       *prometheus.CounterVec
	scaleFallbacks      prometheus.Counter
	exportsTotal        *prometheus.CounterVec
	refreshJobs         *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	fetchCount           uint64
	fetchDurationTotal   uint64
	aggregationCount     uint64
	orphanCount          uint64
	degradedCount        uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gradebook_fetch_duration_seconds",
		Help:    "Duration of collection fetches feeding aggregation",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	fetchFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_fetch_failures_total",
		Help: "Collection fetches that failed and were replaced by an empty collection",
	}, []string{"collection"})

	aggregationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gradebook_aggregation_duration_seconds",
		Help:    "Duration of in-memory aggregation runs",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
	}, []string{"kind"})

	orphanRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_orphan_records_total",
		Help: "Results without a matching roster entry",
	}, []string{"kind"})

	scaleFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gradebook_scale_fallbacks_total",
		Help: "Weighted reports computed with simple averaging because the grading scale was invalid",
	})

	exportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_exports_total",
		Help: "Generated report exports",
	}, []string{"format"})

	refreshJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gradebook_refresh_jobs_total",
		Help: "Summary refresh jobs by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		fetchDuration, fetchFailures, aggregationDuration, orphanRecords, scaleFallbacks, exportsTotal, refreshJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheHitRatio:       cacheHitRatio,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		fetchDuration:       fetchDuration,
		fetchFailures:       fetchFailures,
		aggregationDuration: aggregationDuration,
		orphanRecords:       orphanRecords,
		scaleFallbacks:      scaleFallbacks,
		exportsTotal:        exportsTotal,
		refreshJobs:         refreshJobs,
	}
}

// TrackQueueDepth exports the number of jobs waiting in the named queue.
func (m *MetricsService) TrackQueueDepth(queue string, pending func() int) error {
	if m == nil || pending == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "gradebook_queue_pending_jobs",
		Help:        "Jobs buffered in a background queue and not yet running",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 {
		return float64(pending())
	})
	if err := m.registry.Register(gauge); err != nil {
		return fmt.Errorf("register queue depth for %s: %w", queue, err)
	}
	return nil
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveFetch records how long a collection fetch took and whether it
// degraded to an empty collection.
func (m *MetricsService) ObserveFetch(collection string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(collection).Observe(duration.Seconds())
	atomic.AddUint64(&m.fetchCount, 1)
	atomic.AddUint64(&m.fetchDurationTotal, uint64(duration.Nanoseconds()))
	if failed {
		m.fetchFailures.WithLabelValues(collection).Inc()
		atomic.AddUint64(&m.degradedCount, 1)
	}
}

// ObserveAggregation records one aggregation run of the given kind.
func (m *MetricsService) ObserveAggregation(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.aggregationDuration.WithLabelValues(kind).Observe(duration.Seconds())
	atomic.AddUint64(&m.aggregationCount, 1)
}

// AddOrphans counts results that did not match the roster.
func (m *MetricsService) AddOrphans(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphanRecords.WithLabelValues(kind).Add(float64(n))
	atomic.AddUint64(&m.orphanCount, uint64(n))
}

// IncScaleFallback counts weighted requests served with simple averaging.
func (m *MetricsService) IncScaleFallback() {
	if m == nil {
		return
	}
	m.scaleFallbacks.Inc()
}

// IncExport counts a generated export file.
func (m *MetricsService) IncExport(format string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(format).Inc()
}

// IncRefreshJob counts a refresh job outcome.
func (m *MetricsService) IncRefreshJob(outcome string) {
	if m == nil {
		return
	}
	m.refreshJobs.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated metrics suitable for API consumption.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	fetches := atomic.LoadUint64(&m.fetchCount)
	fetchDuration := atomic.LoadUint64(&m.fetchDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgFetchMs float64
	if fetches > 0 {
		avgFetchMs = float64(fetchDuration) / float64(fetches) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		FetchCount:               fetches,
		AverageFetchDurationMs:   avgFetchMs,
		AggregationsTotal:        atomic.LoadUint64(&m.aggregationCount),
		OrphanRecords:            atomic.LoadUint64(&m.orphanCount),
		DegradedFetches:          atomic.LoadUint64(&m.degradedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
