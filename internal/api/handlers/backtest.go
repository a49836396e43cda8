package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"trading-backtest/internal/api/models"
	"trading-backtest/internal/backtest"
	"trading-backtest/internal/config"
	"trading-backtest/internal/data"
	"trading-backtest/internal/model"
)

// BacktestHandler handles backtest-related requests
type BacktestHandler struct {
	dataDir string
	bars    *data.BarCache
	runs    *data.Cache[*backtest.Result]
}

// NewBacktestHandler creates a new backtest handler. Files named by csv
// data sources are resolved inside dataDir; finished runs are kept in runs
// so their logs can be fetched by id.
func NewBacktestHandler(dataDir string, bars *data.BarCache, runs *data.Cache[*backtest.Result]) *BacktestHandler {
	return &BacktestHandler{dataDir: dataDir, bars: bars, runs: runs}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	bars, err := h.loadBars(req.DataSource)
	if err != nil {
		abort(c, http.StatusBadRequest, "DATA_LOAD_ERROR", err.Error(), nil)
		return
	}

	cfg, err := buildConfig(config.Config{}, req.Config)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_CONFIG", err.Error(), nil)
		return
	}

	id, res, runErr := h.execute(c.Request.Context(), cfg, bars, req.Options)
	if res == nil {
		abort(c, http.StatusInternalServerError, "BACKTEST_ERROR", runErr.Error(), nil)
		return
	}

	resp := buildResponse(id, res, runErr, req.Options.IncludeLogs)
	if runErr != nil {
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory handles GET /api/v1/backtest/:id/history
func (h *BacktestHandler) GetHistory(c *gin.Context) {
	id := c.Param("id")
	res, ok := h.runs.Get(id)
	if !ok {
		abort(c, http.StatusNotFound, "RUN_NOT_FOUND", fmt.Sprintf("no cached run %q", id), nil)
		return
	}
	c.JSON(http.StatusOK, models.HistoryResponse{ID: id, History: convertHistory(res)})
}

// GetTrades handles GET /api/v1/backtest/:id/trades
func (h *BacktestHandler) GetTrades(c *gin.Context) {
	id := c.Param("id")
	res, ok := h.runs.Get(id)
	if !ok {
		abort(c, http.StatusNotFound, "RUN_NOT_FOUND", fmt.Sprintf("no cached run %q", id), nil)
		return
	}
	c.JSON(http.StatusOK, models.TradesResponse{ID: id, Trades: convertTrades(res)})
}

// CompareBacktests handles POST /api/v1/backtest/compare
func (h *BacktestHandler) CompareBacktests(c *gin.Context) {
	var req models.CompareBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}

	// Load data once
	bars, err := h.loadBars(req.DataSource)
	if err != nil {
		abort(c, http.StatusBadRequest, "DATA_LOAD_ERROR", err.Error(), nil)
		return
	}

	ctx := c.Request.Context()
	comparison := make([]models.ComparisonResult, len(req.Variations))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, variation := range req.Variations {
		g.Go(func() error {
			out := models.ComparisonResult{Name: variation.Name}
			defer func() { comparison[i] = out }()

			cfg, err := buildConfig(req.BaseConfig, variation.Config)
			if err != nil {
				out.Status = models.StatusInvalid
				out.Error = &models.ErrorDetail{Code: "INVALID_CONFIG", Message: err.Error()}
				return nil
			}
			id, res, runErr := h.execute(ctx, cfg, bars, req.Options)
			if res == nil {
				out.Status = models.StatusFailed
				out.Error = &models.ErrorDetail{Code: "BACKTEST_ERROR", Message: runErr.Error()}
				return nil
			}
			resp := buildResponse(id, res, runErr, false)
			out.ID = id
			out.Status = resp.Status
			out.Summary = &resp.Summary
			out.Error = resp.Error
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, models.CompareBacktestResponse{Comparison: comparison})
}

// Helper methods

// execute runs one backtest and caches whatever it produced, including the
// partial result of a failed run.
func (h *BacktestHandler) execute(ctx context.Context, cfg *config.Config, bars []model.Bar, opts models.BacktestOptions) (string, *backtest.Result, error) {
	id := uuid.NewString()
	res, err := backtest.Execute(ctx, cfg, data.Slice(bars), backtest.WithMaxBars(opts.LimitBars))
	if res != nil {
		h.runs.Set(id, res)
	}
	if err != nil {
		log.Warn().Err(err).Str("run_id", id).Str("symbol", cfg.Symbol).Msg("backtest failed")
	}
	return id, res, err
}

func (h *BacktestHandler) loadBars(ds models.DataSourceConfig) ([]model.Bar, error) {
	switch ds.Type {
	case "inline":
		if len(ds.Bars) == 0 {
			return nil, errors.New("inline data source has no bars")
		}
		return ds.Bars, nil
	case "csv":
		if ds.Path == "" {
			return nil, errors.New("data_source.path is required")
		}
		if !filepath.IsLocal(ds.Path) {
			return nil, fmt.Errorf("data_source.path %q must be relative to the data directory", ds.Path)
		}
		return h.bars.Load(filepath.Join(h.dataDir, ds.Path))
	default:
		return nil, fmt.Errorf("unsupported data source type %q", ds.Type)
	}
}

// buildConfig layers override onto base onto the defaults, then validates.
func buildConfig(base, override config.Config) (*config.Config, error) {
	merged := config.Merge(base, override)
	merged.ApplyDefaults()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func buildResponse(id string, res *backtest.Result, runErr error, includeLogs bool) models.BacktestResponse {
	resp := models.BacktestResponse{
		ID:      id,
		Status:  models.StatusCompleted,
		Summary: buildSummary(res),
	}
	if runErr != nil {
		resp.Status = models.StatusFailed
		resp.Error = runErrorDetail(runErr)
	}
	if includeLogs {
		resp.History = convertHistory(res)
		resp.Trades = convertTrades(res)
	}
	return resp
}

func runErrorDetail(err error) *models.ErrorDetail {
	detail := &models.ErrorDetail{Code: "BACKTEST_FAILED", Message: err.Error()}
	var runErr *backtest.RunError
	if errors.As(err, &runErr) {
		detail.Details = map[string]any{
			"bar_index": runErr.Index,
			"stage":     string(runErr.Stage),
		}
		if !runErr.BarTime.IsZero() {
			detail.Details["bar_time"] = runErr.BarTime.Format(time.RFC3339)
		}
	}
	return detail
}

func buildSummary(res *backtest.Result) models.BacktestSummary {
	s := models.BacktestSummary{
		Symbol:        res.Symbol,
		Strategy:      res.Strategy,
		StartingCash:  model.FormatPrice(res.StartingCash),
		FinalValue:    model.FormatPrice(res.FinalValue),
		PnL:           model.FormatPrice(res.PnL),
		Cash:          model.FormatPrice(res.Cash),
		UnrealizedPnL: model.FormatPrice(res.UnrealizedPnL),
		TradeCount:    res.TradeCount,
		Bars:          res.Bars,
		Window:        models.TimeWindow{Start: res.Window.Start, End: res.Window.End},
	}
	for sym, p := range res.Positions {
		s.Positions = append(s.Positions, models.PositionRow{
			Symbol:      sym,
			Quantity:    p.Quantity,
			CostBasis:   model.FormatPrice(p.CostBasis),
			MarketValue: model.FormatPrice(p.MarketValue),
		})
	}
	sort.Slice(s.Positions, func(i, j int) bool { return s.Positions[i].Symbol < s.Positions[j].Symbol })
	return s
}

func convertHistory(res *backtest.Result) []models.HistoryRow {
	out := make([]models.HistoryRow, len(res.History))
	for i, p := range res.History {
		out[i] = models.HistoryRow{Timestamp: p.Timestamp, Value: model.FormatPrice(p.Value)}
	}
	return out
}

func convertTrades(res *backtest.Result) []models.TradeRow {
	out := make([]models.TradeRow, len(res.Trades))
	for i, t := range res.Trades {
		out[i] = models.TradeRow{
			Timestamp: t.Timestamp,
			Symbol:    t.Symbol,
			Side:      string(t.Side),
			Price:     model.FormatPrice(t.Price),
			Quantity:  t.Quantity,
		}
	}
	return out
}

func abort(c *gin.Context, status int, code, message string, details map[string]any) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{Code: code, Message: message, Details: details},
	})
}
