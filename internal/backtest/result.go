package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-backtest/internal/portfolio"
)

// Window is the span of bar timestamps a run covered.
type Window struct {
	Start time.Time
	End   time.Time
}

// Result is the terminal summary of a run plus the two logs it produced.
type Result struct {
	Symbol   string
	Strategy string

	Bars       int
	TradeCount int

	StartingCash  decimal.Decimal
	FinalValue    decimal.Decimal
	PnL           decimal.Decimal // FinalValue - StartingCash
	Cash          decimal.Decimal
	UnrealizedPnL decimal.Decimal

	Window    Window
	Positions map[string]portfolio.Position

	History []portfolio.HistoryPoint
	Trades  []portfolio.TradeRecord

	book *portfolio.Portfolio
}

type Stage string

const (
	StageSource   Stage = "source"
	StageContext  Stage = "context"
	StageValidate Stage = "validate"
	StageMarket   Stage = "market"
	StageSubmit   Stage = "submit"
	StageFlush    Stage = "flush"
)

// RunError aborts a run at a specific bar. BarTime is zero when the bar
// itself could not be read.
type RunError struct {
	Index   int
	BarTime time.Time
	Stage   Stage
	Err     error
}

func (e *RunError) Error() string {
	if e.BarTime.IsZero() {
		return fmt.Sprintf("bar %d: %s: %v", e.Index, e.Stage, e.Err)
	}
	return fmt.Sprintf("bar %d (%s): %s: %v", e.Index, e.BarTime.Format(time.RFC3339), e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
