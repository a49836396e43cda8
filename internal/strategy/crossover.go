package strategy

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"trading-backtest/internal/model"
)

type State string

const (
	StateFlat State = "FLAT"
	StateLong State = "LONG"
)

// CrossoverParams configures a moving-average crossover.
// - ShortWindow/LongWindow: number of closes in each mean, Short <= Long
// - LotSize: quantity of every market order
// - TraderID: identity the orders are submitted under
type CrossoverParams struct {
	Symbol      string
	ShortWindow int
	LongWindow  int
	LotSize     int64
	TraderID    model.TraderID
}

func (p CrossoverParams) Validate() error {
	if p.Symbol == "" {
		return errors.New("symbol is required")
	}
	if p.ShortWindow <= 0 {
		return errors.New("short_window must be > 0")
	}
	if p.LongWindow < p.ShortWindow {
		return errors.New("long_window must be >= short_window")
	}
	if p.LotSize <= 0 {
		return errors.New("lot_size must be > 0")
	}
	if p.TraderID == 0 {
		return errors.New("trader_id must be set")
	}
	return nil
}

// Crossover goes LONG when the short mean of closes rises above the long
// mean and back to FLAT when it falls below. Equal means never trade.
type Crossover struct {
	Params CrossoverParams

	closes  *priceWindow
	state   State
	shortMA decimal.Decimal
	longMA  decimal.Decimal
}

func NewCrossover(p CrossoverParams) (*Crossover, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Crossover{
		Params: p,
		closes: newPriceWindow(p.LongWindow),
		state:  StateFlat,
	}, nil
}

func (s *Crossover) Name() string { return "ma_crossover" }

func (s *Crossover) State() State { return s.state }

func (s *Crossover) ShortMA() decimal.Decimal { return s.shortMA }

func (s *Crossover) LongMA() decimal.Decimal { return s.longMA }

func (s *Crossover) Decide(ctx Context) *model.Order {
	s.closes.push(ctx.Bar.Close)
	if !s.closes.full() {
		return nil
	}

	shortSum := s.closes.sumLast(s.Params.ShortWindow)
	longSum := s.closes.sumLast(s.Params.LongWindow)
	s.shortMA = shortSum.Div(decimal.NewFromInt(int64(s.Params.ShortWindow)))
	s.longMA = longSum.Div(decimal.NewFromInt(int64(s.Params.LongWindow)))

	// Compare cross-multiplied sums so that rounding in Div cannot turn a
	// tie into a signal.
	cmp := shortSum.Mul(decimal.NewFromInt(int64(s.Params.LongWindow))).
		Cmp(longSum.Mul(decimal.NewFromInt(int64(s.Params.ShortWindow))))

	log.Debug().
		Int("bar", ctx.Index).
		Str("short_ma", s.shortMA.StringFixed(4)).
		Str("long_ma", s.longMA.StringFixed(4)).
		Str("state", string(s.state)).
		Msg("crossover evaluated")

	switch {
	case cmp > 0 && s.state == StateFlat:
		s.state = StateLong
		return s.order(model.SideBuy, ctx)
	case cmp < 0 && s.state == StateLong:
		s.state = StateFlat
		return s.order(model.SideSell, ctx)
	}
	return nil
}

func (s *Crossover) order(side model.Side, ctx Context) *model.Order {
	log.Info().
		Time("bar", ctx.Bar.Timestamp).
		Str("side", string(side)).
		Int64("qty", s.Params.LotSize).
		Msg("crossover signal")
	o := model.NewMarketOrder(s.Params.Symbol, side, s.Params.LotSize, s.Params.TraderID)
	return &o
}
