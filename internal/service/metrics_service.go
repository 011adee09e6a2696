package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

const metricsNamespace = "visitor"

// durationTally keeps a count and a nanosecond total for snapshot averages.
type durationTally struct {
	count uint64
	nanos uint64
}

func (t *durationTally) add(d time.Duration) {
	atomic.AddUint64(&t.count, 1)
	atomic.AddUint64(&t.nanos, uint64(d.Nanoseconds()))
}

func (t *durationTally) load() (uint64, float64) {
	count := atomic.LoadUint64(&t.count)
	if count == 0 {
		return 0, 0
	}
	return count, float64(atomic.LoadUint64(&t.nanos)) / float64(count) / float64(time.Millisecond)
}

// MetricsService owns the Prometheus registry and keeps in-process tallies
// for the /analytics/system snapshot.
type MetricsService struct {
	handler http.Handler

	httpDuration  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	cacheLatency  prometheus.Histogram
	cacheWrite    prometheus.Histogram
	cacheHitRatio prometheus.Gauge
	dbQuery       *prometheus.HistogramVec
	entries       *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	ledgerWrites  *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec

	cacheHits   uint64
	cacheMisses uint64
	entryCount  uint64
	requests    durationTally
	queries     durationTally
}

// NewMetricsService builds a private registry with runtime collectors and the
// service's own series.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(registry)

	return &MetricsService{
		handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "path", "status"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_cache_lookups_total",
			Help:      "Analytics report cache lookups by result.",
		}, []string{"result"}),
		cacheLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "report_cache_lookup_seconds",
			Help:      "Latency of report cache reads.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		cacheWrite: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "report_cache_write_seconds",
			Help:      "Latency of report cache writes.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		cacheHitRatio: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "report_cache_hit_ratio",
			Help:      "Share of report cache lookups served from cache.",
		}),
		dbQuery: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "db_query_duration_seconds",
			Help:      "Record source query latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analytics_entries_processed_total",
			Help:      "Log entries aggregated into analytics reports.",
		}, []string{"view"}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analytics_data_quality_anomalies_total",
			Help:      "Malformed or inconsistent log entries seen during aggregation.",
		}, []string{"kind"}),
		ledgerWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attendance_ledger_writes_total",
			Help:      "Attendance ledger writes by operation and outcome.",
		}, []string{"operation", "outcome"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "background_jobs_total",
			Help:      "Background jobs handled by queue and outcome.",
		}, []string{"queue", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "background_job_duration_seconds",
			Help:      "Background job handler duration.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"queue"}),
	}
}

// Handler serves the registry. A nil service answers 503.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest satisfies middleware.RequestObserver.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.httpRequests.WithLabelValues(method, path, code).Inc()
	m.requests.add(duration)
}

// RecordCacheOperation counts a report cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		atomic.AddUint64(&m.cacheHits, 1)
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
		atomic.AddUint64(&m.cacheMisses, 1)
	}
	m.cacheHitRatio.Set(m.hitRatio())
}

// ObserveCacheWrite records a report cache write.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records a labelled record source query.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQuery.WithLabelValues(label).Observe(duration.Seconds())
	m.queries.add(duration)
}

// RecordEntriesProcessed counts log entries aggregated for a report view.
func (m *MetricsService) RecordEntriesProcessed(view string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.entries.WithLabelValues(view).Add(float64(count))
	atomic.AddUint64(&m.entryCount, uint64(count))
}

// RecordDataQualityAnomaly counts a malformed entry by kind.
func (m *MetricsService) RecordDataQualityAnomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}

// RecordLedgerWrite counts a check-in, face verification or departure write.
func (m *MetricsService) RecordLedgerWrite(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(operation, outcome).Inc()
}

// ObserveJob records a background job outcome. It satisfies jobs.Observer.
func (m *MetricsService) ObserveJob(queue, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(queue, outcome).Inc()
	m.jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// Snapshot summarises the in-process tallies for the system analytics endpoint.
func (m *MetricsService) Snapshot() models.AnalyticsSystemMetrics {
	if m == nil {
		return models.AnalyticsSystemMetrics{}
	}
	requests, avgRequest := m.requests.load()
	queries, avgQuery := m.queries.load()
	return models.AnalyticsSystemMetrics{
		CacheHitRatio:            m.hitRatio(),
		CacheHits:                atomic.LoadUint64(&m.cacheHits),
		CacheMisses:              atomic.LoadUint64(&m.cacheMisses),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequest,
		DBQueryCount:             queries,
		AverageDBQueryDurationMs: avgQuery,
		EntriesProcessed:         atomic.LoadUint64(&m.entryCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

func (m *MetricsService) hitRatio() float64 {
	hits := atomic.LoadUint64(&m.cacheHits)
	total := hits + atomic.LoadUint64(&m.cacheMisses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
