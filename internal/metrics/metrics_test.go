package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMetricsObserve(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.Store.Observe("save", ResultOK, 10*time.Millisecond)
	m.Store.Observe("save", ResultOK, 20*time.Millisecond)
	m.Store.Observe("lookup", ResultNotFound, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Store.Operations.WithLabelValues("save", ResultOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Store.Operations.WithLabelValues("lookup", ResultNotFound)), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.Store.Duration))
}

func TestClassifyMetricsCountsFilesOnlyOnSuccess(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.Classify.ObserveRequest(ResultOK, 3)
	m.Classify.ObserveRequest(ResultError, 5)

	assert.InDelta(t, 3, testutil.ToFloat64(m.Classify.Files), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Classify.Requests.WithLabelValues(ResultError)), 0)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var s *StoreMetrics
	var c *ClassifyMetrics
	assert.NotPanics(t, func() {
		s.Observe("save", ResultOK, time.Second)
		c.ObserveRequest(ResultOK, 1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.Store.Observe("delete", ResultOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `swanid_store_operations_total{op="delete",result="ok"} 1`), body)
}
