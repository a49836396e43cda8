// Package metrics provides Prometheus instrumentation for backtest runs and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts finished backtests by outcome ("ok" or "failed").
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_runs_total",
		Help: "Total number of backtest runs",
	}, []string{"strategy", "status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backtest_run_duration_seconds",
		Help:    "Wall-clock duration of a backtest run",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"strategy"})

	BarsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backtest_bars_processed_total",
		Help: "Bars driven through the simulation clock",
	})

	// FillsTotal counts fills attributed to the strategy trader, by side.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_fills_total",
		Help: "Fills recorded in portfolio trade logs",
	}, []string{"side"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backtest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// ObserveRun records the outcome of one backtest.
func ObserveRun(strategy string, bars int, fills map[string]int, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	RunsTotal.WithLabelValues(strategy, status).Inc()
	RunDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	BarsProcessed.Add(float64(bars))
	for side, n := range fills {
		FillsTotal.WithLabelValues(side).Add(float64(n))
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The path label is the matched route
// pattern, not the raw URL, so ids do not blow up cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
