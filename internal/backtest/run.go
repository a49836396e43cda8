package backtest

import (
	"context"
	"errors"
	"iter"
	"time"

	"trading-backtest/internal/config"
	"trading-backtest/internal/exchange"
	"trading-backtest/internal/market"
	"trading-backtest/internal/metrics"
	"trading-backtest/internal/model"
	"trading-backtest/internal/portfolio"
)

// Execute wires a fresh matching engine, portfolio, market simulator and
// strategy from cfg and runs them over bars. Like Clock.Run it returns the
// partial Result alongside a *RunError when a bar fails.
func Execute(ctx context.Context, cfg *config.Config, bars iter.Seq2[model.Bar, error], opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	book, err := portfolio.New(cfg.StartingCash, cfg.Trader())
	if err != nil {
		return nil, err
	}
	strat, err := cfg.BuildStrategy()
	if err != nil {
		return nil, err
	}
	venue := exchange.New()
	sim, err := market.NewSimulator(venue, cfg.MarketParams())
	if err != nil {
		return nil, err
	}
	clock, err := New(venue, book, sim, strat, opts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, runErr := clock.Run(ctx, bars)
	metrics.ObserveRun(res.Strategy, res.Bars, fillsBySide(res.Trades), time.Since(start), runErr)
	return res, runErr
}

// Save persists the run's two logs through the portfolio that produced
// them.
func (r *Result) Save(w portfolio.ResultWriter) error {
	if r == nil || r.book == nil {
		return errors.New("result has no portfolio to save")
	}
	return r.book.SaveResults(w)
}

func fillsBySide(trades []portfolio.TradeRecord) map[string]int {
	out := make(map[string]int, 2)
	for _, t := range trades {
		out[string(t.Side)]++
	}
	return out
}
