package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg)

	m.Requests.WithLabelValues("/api/v1/cart", "GET", "200").Inc()
	m.CheckoutsCleared.WithLabelValues("cleared").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/v1/cart", "GET", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckoutsCleared.WithLabelValues("cleared")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "storefront_http_requests_total"))
}

func TestServerMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewServerMetrics(reg)
	assert.Panics(t, func() { NewServerMetrics(reg) })
}
