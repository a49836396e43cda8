package backtest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"trading-backtest/internal/exchange"
	"trading-backtest/internal/market"
	"trading-backtest/internal/model"
	"trading-backtest/internal/portfolio"
	"trading-backtest/internal/strategy"
)

// Venue is the matching engine as seen by the clock.
type Venue interface {
	market.OrderRouter
	Start()
	Stop()
	SubscribeTradeExecuted(fn exchange.TradeHandler)
	SubscribeMarketData(fn exchange.MarketDataHandler)
}

// flusher is implemented by venues that deliver events asynchronously and
// can report when everything queued so far has been delivered.
type flusher interface {
	Flush(ctx context.Context) error
}

type Option func(*Clock)

// WithMaxBars stops the run after n bars. Zero means no limit.
func WithMaxBars(n int) Option {
	return func(c *Clock) { c.maxBars = n }
}

// WithBarHook registers fn to be called after each bar has been logged.
func WithBarHook(fn func(index int, bar model.Bar, value decimal.Decimal)) Option {
	return func(c *Clock) { c.onBar = fn }
}

// Clock drives a bar sequence through the simulator, the strategy and the
// portfolio in a fixed order.
type Clock struct {
	venue     Venue
	portfolio *portfolio.Portfolio
	sim       *market.Simulator
	strat     strategy.Strategy
	symbol    string

	maxBars int
	onBar   func(int, model.Bar, decimal.Decimal)
}

// New wires the portfolio to the venue's event streams. Subscribing happens
// here, before the venue is started, so no fill can be missed.
func New(venue Venue, p *portfolio.Portfolio, sim *market.Simulator, strat strategy.Strategy, opts ...Option) (*Clock, error) {
	switch {
	case venue == nil:
		return nil, errors.New("venue is nil")
	case p == nil:
		return nil, errors.New("portfolio is nil")
	case sim == nil:
		return nil, errors.New("market simulator is nil")
	case strat == nil:
		return nil, errors.New("strategy is nil")
	}
	c := &Clock{
		venue:     venue,
		portfolio: p,
		sim:       sim,
		strat:     strat,
		symbol:    sim.Params().Symbol,
	}
	for _, opt := range opts {
		opt(c)
	}
	venue.SubscribeTradeExecuted(p.OnFill)
	venue.SubscribeMarketData(p.OnMarketData)
	return c, nil
}

// Run processes bars until the sequence ends. On failure the returned
// Result still holds everything logged up to the failing bar, alongside a
// *RunError.
func (c *Clock) Run(ctx context.Context, bars iter.Seq2[model.Bar, error]) (*Result, error) {
	c.venue.Start()

	started := time.Now()
	var (
		window Window
		prev   time.Time
		idx    int
		runErr error
	)

	log.Info().
		Str("symbol", c.symbol).
		Str("strategy", c.strat.Name()).
		Str("cash", model.FormatPrice(c.portfolio.StartingCash())).
		Msg("backtest started")

	for bar, err := range bars {
		if err != nil {
			runErr = &RunError{Index: idx, Stage: StageSource, Err: err}
			break
		}
		if c.maxBars > 0 && idx >= c.maxBars {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = &RunError{Index: idx, BarTime: bar.Timestamp, Stage: StageContext, Err: err}
			break
		}
		if stage, err := c.step(ctx, idx, bar, prev); err != nil {
			runErr = &RunError{Index: idx, BarTime: bar.Timestamp, Stage: stage, Err: err}
			break
		}
		if idx == 0 {
			window.Start = bar.Timestamp
		}
		window.End = bar.Timestamp
		prev = bar.Timestamp
		idx++
	}

	c.teardown(ctx)

	res := c.result(idx, window)
	ev := log.Info()
	if runErr != nil {
		ev = log.Warn().Err(runErr)
	}
	ev.Str("symbol", c.symbol).
		Int("bars", res.Bars).
		Int("trades", res.TradeCount).
		Str("value", model.FormatPrice(res.FinalValue)).
		Str("pnl", model.FormatPrice(res.PnL)).
		Dur("elapsed", time.Since(started)).
		Msg("backtest finished")

	if runErr != nil {
		return res, runErr
	}
	return res, nil
}

// step runs one bar. Stage names the part that failed.
func (c *Clock) step(ctx context.Context, idx int, bar model.Bar, prev time.Time) (Stage, error) {
	if err := bar.Validate(); err != nil {
		return StageValidate, err
	}
	if !prev.IsZero() && !bar.Timestamp.After(prev) {
		return StageValidate, fmt.Errorf("timestamp %s not after previous bar %s",
			bar.Timestamp.Format(time.RFC3339), prev.Format(time.RFC3339))
	}

	// Fills for this bar may be delivered on another goroutine, so the
	// timestamp has to be in place before anything can trade.
	c.portfolio.SetBarTimestamp(bar.Timestamp)

	if err := c.sim.OnBar(ctx, bar); err != nil {
		return StageMarket, err
	}

	if o := c.strat.Decide(strategy.Context{Index: idx, Bar: bar}); o != nil {
		id, err := c.venue.Submit(ctx, *o)
		if err != nil {
			return StageSubmit, err
		}
		log.Debug().
			Int("bar", idx).
			Str("side", string(o.Side)).
			Int64("qty", o.Quantity).
			Uint64("order_id", uint64(id)).
			Msg("strategy order submitted")
	}

	if f, ok := c.venue.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return StageFlush, err
		}
	}

	c.portfolio.OnMarketData(model.MarketDataEvent{
		Symbol:    c.symbol,
		LastPrice: model.PriceToCents(bar.Close),
	})
	c.portfolio.LogState(bar.Timestamp)

	if c.onBar != nil {
		c.onBar(idx, bar, c.portfolio.Value())
	}
	return "", nil
}

// teardown withdraws any resting synthetic quotes and stops the venue.
// Failures here are logged, never returned: the run's outcome is already
// decided.
func (c *Clock) teardown(ctx context.Context) {
	if err := c.sim.Cleanup(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Str("symbol", c.symbol).Msg("final quote cleanup failed")
	}
	c.venue.Stop()
}

func (c *Clock) result(bars int, window Window) *Result {
	start := c.portfolio.StartingCash()
	final := c.portfolio.Value()
	return &Result{
		Symbol:        c.symbol,
		Strategy:      c.strat.Name(),
		Bars:          bars,
		TradeCount:    c.portfolio.TradeCount(),
		StartingCash:  start,
		FinalValue:    final,
		PnL:           final.Sub(start),
		Cash:          c.portfolio.Cash(),
		UnrealizedPnL: c.portfolio.TotalUnrealizedPnL(),
		Window:        window,
		Positions:     c.portfolio.Holdings(),
		History:       c.portfolio.History(),
		Trades:        c.portfolio.Trades(),
		book:          c.portfolio,
	}
}
