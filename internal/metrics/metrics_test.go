package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("test_strategy", "failed"))
	buys := testutil.ToFloat64(FillsTotal.WithLabelValues("BUY"))

	ObserveRun("test_strategy", 10, map[string]int{"BUY": 2}, time.Millisecond, errors.New("boom"))

	require.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("test_strategy", "failed")))
	require.Equal(t, buys+2, testutil.ToFloat64(FillsTotal.WithLabelValues("BUY")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/runs/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/runs/:id", "204")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "backtest_http_requests_total"))
}
