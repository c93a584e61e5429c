package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// createTestMetrics creates metrics on a private registry.
func createTestMetrics() *Metrics {
	return NewWithRegisterer("test", prometheus.NewRegistry())
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := createTestMetrics()

	m.RecordHTTPRequest("GET", "/api/v1/plans", 200, 100*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/plans", 201, 50*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/requests", 409, 10*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/plans", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/requests", "4xx")))
}

func TestMetrics_Observer(t *testing.T) {
	m := createTestMetrics()

	m.TransitionCompleted("upgrade", "success")
	m.TransitionCompleted("upgrade", "success")
	m.TransitionCompleted("upgrade", "conflict")
	m.VersionConflict("upgrade")
	m.PlanCacheLookup(true)
	m.PlanCacheLookup(false)
	m.PlanCacheLookup(false)
	m.UsageLookupFailed("timeout")
	m.SweepCompleted("expired", 3)
	m.SweepCompleted("skipped", 0)
	m.ProrationComputed("USD", 33.33)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("upgrade", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("upgrade", "conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.VersionConflictsTotal.WithLabelValues("upgrade")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("plan")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("plan")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UsageFailuresTotal.WithLabelValues("timeout")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SweepRowsTotal.WithLabelValues("expired")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SweepRowsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProrationAmount))
}

func TestMetrics_SetMRR(t *testing.T) {
	m := createTestMetrics()

	m.SetMRR("USD", 169.98)
	m.SetMRR("USD", 170.5)

	assert.Equal(t, 170.5, testutil.ToFloat64(m.MRR.WithLabelValues("USD")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{422, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusCodeToString(tt.code))
		})
	}
}
