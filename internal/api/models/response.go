package models

import "time"

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusInvalid   = "invalid"
)

// BacktestResponse represents the response from a backtest run
type BacktestResponse struct {
	ID      string          `json:"id,omitempty"`
	Status  string          `json:"status"`
	Summary BacktestSummary `json:"summary"`
	Error   *ErrorDetail    `json:"error,omitempty"`
	History []HistoryRow    `json:"history,omitempty"`
	Trades  []TradeRow      `json:"trades,omitempty"`
}

// BacktestSummary contains aggregated backtest results. Money is rendered
// as fixed two-decimal strings.
type BacktestSummary struct {
	Symbol        string        `json:"symbol"`
	Strategy      string        `json:"strategy"`
	StartingCash  string        `json:"starting_cash"`
	FinalValue    string        `json:"final_value"`
	PnL           string        `json:"pnl"`
	Cash          string        `json:"cash"`
	UnrealizedPnL string        `json:"unrealized_pnl"`
	TradeCount    int           `json:"trade_count"`
	Bars          int           `json:"bars"`
	Window        TimeWindow    `json:"window"`
	Positions     []PositionRow `json:"positions,omitempty"`
}

// TimeWindow represents a time range
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type PositionRow struct {
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
	CostBasis   string `json:"cost_basis"`
	MarketValue string `json:"market_value"`
}

// HistoryRow is one equity history point.
type HistoryRow struct {
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
}

// TradeRow is one fill from the trade log.
type TradeRow struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     string    `json:"price"`
	Quantity  int64     `json:"quantity"`
}

type HistoryResponse struct {
	ID      string       `json:"id"`
	History []HistoryRow `json:"history"`
}

type TradesResponse struct {
	ID     string     `json:"id"`
	Trades []TradeRow `json:"trades"`
}

// CompareBacktestResponse represents the response from a comparison
type CompareBacktestResponse struct {
	Comparison []ComparisonResult `json:"comparison"`
}

// ComparisonResult contains results for one variation
type ComparisonResult struct {
	Name    string           `json:"name"`
	ID      string           `json:"id,omitempty"`
	Status  string           `json:"status"`
	Summary *BacktestSummary `json:"summary,omitempty"`
	Error   *ErrorDetail     `json:"error,omitempty"`
}

// StrategyInfo describes a strategy
type StrategyInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ParameterInfo describes a strategy parameter
type ParameterInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default"`
}

// DatasetInfo describes a bar file available to csv data sources
type DatasetInfo struct {
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
