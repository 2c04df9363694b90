package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareRecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRec, metricsReq)

	body := metricsRec.Body.String()
	require.Contains(t, body, "authz_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestMetricsCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveResolution("ok")
	metrics.ObserveCacheLookup("hit")
	metrics.ObserveCacheLookup("miss")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	require.Contains(t, body, `authz_permission_resolutions_total{outcome="ok"} 1`)
	require.Contains(t, body, `authz_permission_cache_lookups_total{result="hit"} 1`)
	require.Contains(t, body, `authz_permission_cache_lookups_total{result="miss"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveResolution("ok")
	metrics.ObserveCacheLookup("hit")

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	unavailable := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(unavailable, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, unavailable.Code)
	require.True(t, strings.Contains(unavailable.Body.String(), http.StatusText(http.StatusServiceUnavailable)))
}
