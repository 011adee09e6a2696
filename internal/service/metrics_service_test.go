package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/visitor-attendance-api/pkg/jobs"
)

var _ jobs.Observer = (*MetricsService)(nil)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/analytics", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/analytics", http.StatusOK, 40*time.Millisecond)
	m.ObserveDBQuery("attendance_records.list", 10*time.Millisecond)
	m.RecordEntriesProcessed("summary", 12)
	m.RecordEntriesProcessed("summary", 0)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
	assert.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 1e-9)
	assert.EqualValues(t, 2, snap.RequestsTotal)
	assert.InDelta(t, 30, snap.AverageRequestDurationMs, 0.001)
	assert.EqualValues(t, 1, snap.DBQueryCount)
	assert.EqualValues(t, 12, snap.EntriesProcessed)
	assert.Greater(t, snap.Goroutines, 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(m.cacheHitRatio), 1e-9)
}

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordDataQualityAnomaly("reversed_interval")
	m.RecordDataQualityAnomaly("reversed_interval")
	m.RecordLedgerWrite("check_in", "ok")
	m.ObserveJob("reports", jobs.OutcomeSucceeded, time.Second)
	m.ObserveJob("reports", jobs.OutcomeRetried, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.anomalies.WithLabelValues("reversed_interval")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerWrites.WithLabelValues("check_in", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("reports", jobs.OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("reports", jobs.OutcomeRetried)))
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveJob("mail", jobs.OutcomeDropped, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), `visitor_background_jobs_total{outcome="dropped",queue="mail"} 1`)

	var nilMetrics *MetricsService
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotPanics(t, func() { nilMetrics.ObserveJob("mail", jobs.OutcomeSucceeded, 0) })
}
