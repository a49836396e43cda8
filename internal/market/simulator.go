// Package market injects synthetic liquidity around each historical bar so
// that strategy market orders always have something to trade against.
package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"trading-backtest/internal/model"
)

// DefaultQuoteQuantity is large enough that a strategy lot never exhausts a
// synthetic quote within a bar.
const DefaultQuoteQuantity int64 = 1_000_000

// OrderRouter is the part of the matching engine the simulator needs.
type OrderRouter interface {
	Submit(ctx context.Context, o model.Order) (model.OrderID, error)
	Cancel(ctx context.Context, id model.OrderID) error
}

type Params struct {
	Symbol        string
	BidTrader     model.TraderID
	AskTrader     model.TraderID
	QuoteQuantity int64
}

func (p Params) Validate() error {
	if p.Symbol == "" {
		return errors.New("symbol is required")
	}
	if p.BidTrader == 0 || p.AskTrader == 0 {
		return errors.New("synthetic trader ids must be set")
	}
	if p.BidTrader == p.AskTrader {
		return errors.New("synthetic bid and ask traders must differ")
	}
	if p.QuoteQuantity <= 0 {
		return errors.New("quote quantity must be > 0")
	}
	return nil
}

// Simulator owns at most one synthetic bid and one synthetic ask at a time.
type Simulator struct {
	params Params
	router OrderRouter

	bidID *model.OrderID
	askID *model.OrderID
}

func NewSimulator(router OrderRouter, p Params) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{params: p, router: router}, nil
}

func (s *Simulator) Params() Params { return s.params }

// OnBar withdraws the previous bar's quotes and posts a bid at the bar low
// and an ask at the bar high.
func (s *Simulator) OnBar(ctx context.Context, bar model.Bar) error {
	if err := s.Cleanup(ctx); err != nil {
		return err
	}

	bid, ask := QuotePrices(bar)
	bidID, err := s.router.Submit(ctx, model.NewLimitOrder(
		s.params.Symbol, model.SideBuy, model.FormatPrice(bid), s.params.QuoteQuantity, s.params.BidTrader))
	if err != nil {
		return fmt.Errorf("post synthetic bid %s: %w", model.FormatPrice(bid), err)
	}
	s.bidID = &bidID

	askID, err := s.router.Submit(ctx, model.NewLimitOrder(
		s.params.Symbol, model.SideSell, model.FormatPrice(ask), s.params.QuoteQuantity, s.params.AskTrader))
	if err != nil {
		return fmt.Errorf("post synthetic ask %s: %w", model.FormatPrice(ask), err)
	}
	s.askID = &askID

	log.Debug().
		Str("symbol", s.params.Symbol).
		Str("bid", model.FormatPrice(bid)).
		Str("ask", model.FormatPrice(ask)).
		Msg("synthetic quotes posted")
	return nil
}

// Cleanup cancels any synthetic quote still held. Ids are cleared whether or
// not the quote had already traded away.
func (s *Simulator) Cleanup(ctx context.Context) error {
	for _, held := range []**model.OrderID{&s.bidID, &s.askID} {
		if *held == nil {
			continue
		}
		id := **held
		*held = nil
		if err := s.router.Cancel(ctx, id); err != nil {
			return fmt.Errorf("cancel synthetic quote %s: %w", id, err)
		}
	}
	return nil
}

// QuotePrices returns the synthetic bid and ask for a bar, on the cent grid.
// The bid rounds down and the ask rounds up so both stay outside or on the
// bar's range. A bar that collapses to one cent gets its ask lifted by a
// cent so the synthetic quotes never trade with each other.
func QuotePrices(bar model.Bar) (bid, ask decimal.Decimal) {
	bid = bar.Low.RoundFloor(model.PricePlaces)
	ask = bar.High.RoundCeil(model.PricePlaces)
	if !ask.GreaterThan(bid) {
		ask = bid.Add(model.CentsToPrice(1))
	}
	return bid, ask
}
