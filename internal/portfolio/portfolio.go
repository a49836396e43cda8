// Package portfolio is the position and cash ledger for a single trader.
//
// A Portfolio consumes trade-executed and market-data events and keeps cash,
// per-symbol positions with weighted-average cost basis, an append-only trade
// log and an append-only equity history. Every mutation runs under one mutex,
// so events may be delivered from the matching engine's goroutine while the
// simulation clock reads the ledger from its own.
//
// After every mutation: cash + sum(position market values) == value.
package portfolio

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"trading-backtest/internal/model"
)

// Position is one symbol's holding. A zero quantity is never stored.
type Position struct {
	Symbol      string
	Quantity    int64
	CostBasis   decimal.Decimal // weighted-average price of increasing (BUY) fills
	MarketValue decimal.Decimal // Quantity * last known price
}

// TradeRecord is one fill attributed to this portfolio's trader.
type TradeRecord struct {
	Timestamp time.Time
	Symbol    string
	Side      model.Side
	Price     decimal.Decimal
	Quantity  int64
}

// HistoryPoint is a snapshot of total equity.
type HistoryPoint struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

type Portfolio struct {
	mu sync.Mutex

	traderID     model.TraderID
	startingCash decimal.Decimal
	cash         decimal.Decimal
	value        decimal.Decimal
	commissions  decimal.Decimal
	holdings     map[string]*Position

	barTime    time.Time
	tradeCount int
	trades     []TradeRecord
	history    []HistoryPoint
}

type Option func(*Portfolio)

// WithHoldings pre-seeds positions. The map is copied; the caller keeps
// ownership of its argument. Zero-quantity entries are skipped.
func WithHoldings(holdings map[string]Position) Option {
	return func(p *Portfolio) {
		for sym, pos := range holdings {
			if pos.Quantity == 0 {
				continue
			}
			pos.Symbol = sym
			p.holdings[sym] = &pos
		}
	}
}

// WithCommissions seeds the commission accumulator.
func WithCommissions(c decimal.Decimal) Option {
	return func(p *Portfolio) { p.commissions = c }
}

// New creates a ledger. cash must be a decimal string with at most two
// fractional digits; anything else fails with *model.MalformedPriceError.
func New(cash string, traderID model.TraderID, opts ...Option) (*Portfolio, error) {
	c, err := model.ParsePrice(cash)
	if err != nil {
		return nil, err
	}
	p := &Portfolio{
		traderID:     traderID,
		startingCash: c,
		cash:         c,
		holdings:     make(map[string]*Position),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.value = p.totalLocked()
	return p, nil
}

func (p *Portfolio) TraderID() model.TraderID { return p.traderID }

func (p *Portfolio) StartingCash() decimal.Decimal { return p.startingCash }

// SetBarTimestamp sets the timestamp stamped onto trade records. The clock
// calls it before anything that could produce a fill for the bar.
func (p *Portfolio) SetBarTimestamp(ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.barTime = ts
}

// OnFill applies a trade-executed event. Events that involve neither side
// of this portfolio's trader are ignored.
func (p *Portfolio) OnFill(ev model.TradeExecutedEvent) {
	side, ok := ev.SideFor(p.traderID)
	if !ok {
		return
	}
	price := model.CentsToPrice(ev.Price)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.tradeCount++
	p.trades = append(p.trades, TradeRecord{
		Timestamp: p.barTime,
		Symbol:    ev.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  ev.Quantity,
	})

	signed := side.Sign() * ev.Quantity
	p.cash = p.cash.Sub(price.Mul(decimal.NewFromInt(signed)))

	pos, held := p.holdings[ev.Symbol]
	if !held {
		pos = &Position{Symbol: ev.Symbol}
	}
	newQty := pos.Quantity + signed

	log.Debug().
		Uint32("trader_id", uint32(p.traderID)).
		Str("symbol", ev.Symbol).
		Str("side", string(side)).
		Int64("qty", ev.Quantity).
		Str("price", model.FormatPrice(price)).
		Msg("fill")

	if newQty == 0 {
		delete(p.holdings, ev.Symbol)
		p.value = p.totalLocked()
		return
	}
	// SELL fills never touch cost basis, including ones that open or grow a
	// short position.
	if side == model.SideBuy {
		oldCost := pos.CostBasis.Mul(decimal.NewFromInt(pos.Quantity))
		fillCost := price.Mul(decimal.NewFromInt(ev.Quantity))
		pos.CostBasis = oldCost.Add(fillCost).Div(decimal.NewFromInt(newQty))
	}
	pos.Quantity = newQty
	pos.MarketValue = price.Mul(decimal.NewFromInt(newQty))
	p.holdings[ev.Symbol] = pos
	p.value = p.totalLocked()
}

// OnMarketData revalues the position for the event's symbol, if one is held.
func (p *Portfolio) OnMarketData(ev model.MarketDataEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.holdings[ev.Symbol]
	if !ok {
		return
	}
	old := pos.MarketValue
	pos.MarketValue = model.CentsToPrice(ev.LastPrice).Mul(decimal.NewFromInt(pos.Quantity))
	p.value = p.value.Add(pos.MarketValue.Sub(old))
}

// LogState appends the current equity to the history log.
func (p *Portfolio) LogState(ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, HistoryPoint{Timestamp: ts, Value: p.value})
}

// totalLocked must be called with p.mu held.
func (p *Portfolio) totalLocked() decimal.Decimal {
	total := p.cash
	for _, pos := range p.holdings {
		total = total.Add(pos.MarketValue)
	}
	return total
}
