package portfolio

import (
	"github.com/shopspring/decimal"
)

func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Value is total equity: cash plus the market value of every position.
func (p *Portfolio) Value() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *Portfolio) Commissions() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commissions
}

// TradeCount is the number of fills attributed to this trader.
func (p *Portfolio) TradeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tradeCount
}

// Position returns a copy of the holding for symbol.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.holdings[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Holdings returns a copy of all positions keyed by symbol.
func (p *Portfolio) Holdings() map[string]Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Position, len(p.holdings))
	for sym, pos := range p.holdings {
		out[sym] = *pos
	}
	return out
}

func (p *Portfolio) Trades() []TradeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TradeRecord(nil), p.trades...)
}

func (p *Portfolio) History() []HistoryPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]HistoryPoint(nil), p.history...)
}

// UnrealizedPnL is market value minus cost for each held symbol.
func (p *Portfolio) UnrealizedPnL() map[string]decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(p.holdings))
	for sym, pos := range p.holdings {
		cost := pos.CostBasis.Mul(decimal.NewFromInt(pos.Quantity))
		out[sym] = pos.MarketValue.Sub(cost)
	}
	return out
}

func (p *Portfolio) TotalUnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, v := range p.UnrealizedPnL() {
		total = total.Add(v)
	}
	return total
}
