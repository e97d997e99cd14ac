package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	lhttp "github.com/go-libre/libre/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestAdminMuxServesMetricsAndVersion(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "libre_test_total",
		Help: "test counter",
	})
	counter.Inc()
	reg.MustRegister(counter)

	mux := lhttp.NewAdminMux(reg, "1.2.3")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "libre_test_total 1")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/version", nil))
	require.Equal(t, 200, w.Code)
	require.True(t, strings.Contains(w.Body.String(), `"major":1`))
}
