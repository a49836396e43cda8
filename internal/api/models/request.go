package models

import (
	"trading-backtest/internal/config"
	"trading-backtest/internal/model"
)

// BacktestRequest represents the request body for running a backtest
type BacktestRequest struct {
	DataSource DataSourceConfig `json:"data_source"`
	Config     config.Config    `json:"config"`
	Options    BacktestOptions  `json:"options,omitempty"`
}

// DataSourceConfig says where the bars come from: a file in the server's
// data directory ("csv", also accepts .json files) or bars sent inline.
type DataSourceConfig struct {
	Type string      `json:"type" binding:"required,oneof=csv inline"`
	Path string      `json:"path,omitempty"`
	Bars []model.Bar `json:"bars,omitempty"`
}

// BacktestOptions contains optional backtest parameters
type BacktestOptions struct {
	LimitBars   int  `json:"limit_bars,omitempty" binding:"gte=0"` // 0 = all
	IncludeLogs bool `json:"include_logs,omitempty"`
}

// CompareBacktestRequest runs several config variations over the same bars.
type CompareBacktestRequest struct {
	DataSource DataSourceConfig    `json:"data_source"`
	BaseConfig config.Config       `json:"base_config"`
	Variations []BacktestVariation `json:"variations" binding:"required,min=1,dive"`
	Options    BacktestOptions     `json:"options,omitempty"`
}

// BacktestVariation overlays Config onto the base config.
type BacktestVariation struct {
	Name   string        `json:"name" binding:"required"`
	Config config.Config `json:"config"`
}
