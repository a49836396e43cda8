// Package api is the HTTP surface for running backtests.
package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"trading-backtest/internal/api/handlers"
	"trading-backtest/internal/api/middleware"
	"trading-backtest/internal/backtest"
	"trading-backtest/internal/data"
	"trading-backtest/internal/metrics"
)

type Options struct {
	DataDir        string
	StaticDir      string
	RunTTL         time.Duration // how long finished runs stay fetchable by id
	AllowedOrigins []string
}

type Server struct {
	router *gin.Engine
	bars   *data.BarCache
	runs   *data.Cache[*backtest.Result]
	cors   *cors.Cors
}

func New(opts Options) *Server {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.RunTTL <= 0 {
		opts.RunTTL = time.Hour
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router: gin.New(),
		bars:   data.NewBarCache(opts.RunTTL),
		runs:   data.NewCache[*backtest.Result](opts.RunTTL, 5*time.Minute),
		cors: cors.New(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}),
	}

	r := s.router
	r.Use(middleware.Logger())
	r.Use(middleware.ErrorHandler())
	r.Use(metrics.Middleware())

	backtestHandler := handlers.NewBacktestHandler(opts.DataDir, s.bars, s.runs)
	datasetHandler := handlers.NewDatasetHandler(opts.DataDir)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/backtest", backtestHandler.RunBacktest)
		api.GET("/backtest/:id/history", backtestHandler.GetHistory)
		api.GET("/backtest/:id/trades", backtestHandler.GetTrades)
		api.POST("/backtest/compare", backtestHandler.CompareBacktests)

		api.GET("/strategies", handlers.ListStrategies)
		api.GET("/datasets", datasetHandler.ListDatasets)
	}

	s.serveStatic(opts.StaticDir)
	return s
}

// Handler is the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

// Close stops the cache sweepers.
func (s *Server) Close() {
	s.bars.Close()
	s.runs.Close()
}

// serveStatic serves a built frontend from dir, falling back to index.html
// for non-API paths.
func (s *Server) serveStatic(dir string) {
	notFound := func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	}
	if dir == "" {
		s.router.NoRoute(notFound)
		return
	}
	if _, err := os.Stat(dir); err != nil {
		log.Info().Str("dir", dir).Msg("static directory not found, skipping static file serving")
		s.router.NoRoute(notFound)
		return
	}

	s.router.Static("/assets", dir+"/assets")
	s.router.StaticFile("/favicon.ico", dir+"/favicon.ico")
	s.router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			notFound(c)
			return
		}
		c.File(dir + "/index.html")
	})
	log.Info().Str("dir", dir).Msg("serving static files")
}
