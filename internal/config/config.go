package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"trading-backtest/internal/market"
	"trading-backtest/internal/model"
	"trading-backtest/internal/strategy"
)

const (
	DefaultStartingCash = "100000.00"
	DefaultTraderID     = 1
	DefaultBidTraderID  = 9001
	DefaultAskTraderID  = 9002
)

// Config is the on-disk configuration shape (YAML). The same shape is
// accepted as JSON by the HTTP API.
type Config struct {
	Symbol       string `yaml:"symbol" json:"symbol"`
	DataFile     string `yaml:"data_file" json:"data_file,omitempty"`
	StartingCash string `yaml:"starting_cash" json:"starting_cash"`
	TraderID     uint32 `yaml:"trader_id" json:"trader_id"`

	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
	Market   MarketConfig   `yaml:"market" json:"market"`
	Output   OutputConfig   `yaml:"output" json:"-"`
	Log      LogConfig      `yaml:"log" json:"-"`
}

type StrategyConfig struct {
	Name   string         `yaml:"name" json:"name"`
	Params map[string]any `yaml:"params" json:"params,omitempty"`
}

// MarketConfig sets up the synthetic liquidity posted around each bar.
type MarketConfig struct {
	BidTraderID   uint32 `yaml:"bid_trader_id" json:"bid_trader_id,omitempty"`
	AskTraderID   uint32 `yaml:"ask_trader_id" json:"ask_trader_id,omitempty"`
	QuoteQuantity int64  `yaml:"quote_quantity" json:"quote_quantity,omitempty"`
}

type OutputConfig struct {
	HistoryCSV string `yaml:"history_csv"`
	TradesCSV  string `yaml:"trades_csv"`
	SQLitePath string `yaml:"sqlite_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads the file without defaults or validation.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.DataFile != "" && !filepath.IsAbs(c.DataFile) {
		// Prefer interpreting relative paths as relative to the config file directory,
		// but fall back to the provided path (relative to cwd) if that doesn't exist.
		cand := filepath.Join(filepath.Dir(path), c.DataFile)
		if _, err := os.Stat(cand); err == nil {
			c.DataFile = cand
		}
	}
	return &c, nil
}

// Default is a complete, valid configuration for symbol.
func Default(symbol string) *Config {
	c := &Config{Symbol: symbol}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every zero field that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.StartingCash == "" {
		c.StartingCash = DefaultStartingCash
	}
	if c.TraderID == 0 {
		c.TraderID = DefaultTraderID
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "ma_crossover"
	}
	if c.Market.BidTraderID == 0 {
		c.Market.BidTraderID = DefaultBidTraderID
	}
	if c.Market.AskTraderID == 0 {
		c.Market.AskTraderID = DefaultAskTraderID
	}
	if c.Market.QuoteQuantity == 0 {
		c.Market.QuoteQuantity = market.DefaultQuoteQuantity
	}
	if c.Output.HistoryCSV == "" {
		c.Output.HistoryCSV = "csv/backtest_history.csv"
	}
	if c.Output.TradesCSV == "" {
		c.Output.TradesCSV = "csv/backtest_trades.csv"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Symbol == "" {
		return errors.New("symbol is required")
	}
	if _, err := model.ParsePrice(c.StartingCash); err != nil {
		return fmt.Errorf("starting_cash: %w", err)
	}
	if c.TraderID == 0 {
		return errors.New("trader_id is required")
	}
	if c.TraderID == c.Market.BidTraderID || c.TraderID == c.Market.AskTraderID {
		return fmt.Errorf("trader_id %d collides with a synthetic market trader", c.TraderID)
	}
	if err := c.MarketParams().Validate(); err != nil {
		return fmt.Errorf("market config invalid: %w", err)
	}
	if c.Strategy.Name == "" {
		return errors.New("strategy.name is required")
	}
	if _, err := c.BuildStrategy(); err != nil {
		return fmt.Errorf("strategy config invalid: %w", err)
	}
	return nil
}

func (c *Config) Trader() model.TraderID { return model.TraderID(c.TraderID) }

func (c *Config) MarketParams() market.Params {
	return market.Params{
		Symbol:        c.Symbol,
		BidTrader:     model.TraderID(c.Market.BidTraderID),
		AskTrader:     model.TraderID(c.Market.AskTraderID),
		QuoteQuantity: c.Market.QuoteQuantity,
	}
}

func (c *Config) BuildStrategy() (strategy.Strategy, error) {
	return strategy.Build(c.Strategy.Name, c.Strategy.Params, c.Symbol, c.Trader())
}

// Merge overlays non-zero fields from override onto base. Strategy params
// are merged key by key; a different strategy name replaces them.
func Merge(base, override Config) Config {
	out := base
	if override.Symbol != "" {
		out.Symbol = override.Symbol
	}
	if override.DataFile != "" {
		out.DataFile = override.DataFile
	}
	if override.StartingCash != "" {
		out.StartingCash = override.StartingCash
	}
	if override.TraderID != 0 {
		out.TraderID = override.TraderID
	}

	if override.Strategy.Name != "" && override.Strategy.Name != base.Strategy.Name {
		out.Strategy = StrategyConfig{Name: override.Strategy.Name}
	}
	params := make(map[string]any, len(out.Strategy.Params)+len(override.Strategy.Params))
	for k, v := range out.Strategy.Params {
		params[k] = v
	}
	for k, v := range override.Strategy.Params {
		params[k] = v
	}
	out.Strategy.Params = params

	if override.Market.BidTraderID != 0 {
		out.Market.BidTraderID = override.Market.BidTraderID
	}
	if override.Market.AskTraderID != 0 {
		out.Market.AskTraderID = override.Market.AskTraderID
	}
	if override.Market.QuoteQuantity != 0 {
		out.Market.QuoteQuantity = override.Market.QuoteQuantity
	}
	return out
}
