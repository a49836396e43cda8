package model

// TradeExecutedEvent is emitted once per completed match. Prices are cents.
type TradeExecutedEvent struct {
	Symbol           string
	Price            Cents
	Quantity         int64
	AggressingID     OrderID
	AggressingSide   Side
	AggressingTrader TraderID
	RestingID        OrderID
	RestingTrader    TraderID
}

// SideFor resolves which side trader took in this match. ok is false when
// trader is neither the aggressor nor the resting counterparty.
func (e TradeExecutedEvent) SideFor(trader TraderID) (side Side, ok bool) {
	switch trader {
	case e.AggressingTrader:
		return e.AggressingSide, true
	case e.RestingTrader:
		return e.AggressingSide.Opposite(), true
	default:
		return "", false
	}
}

// MarketDataEvent carries the last traded price for a symbol, in cents.
type MarketDataEvent struct {
	Symbol    string
	LastPrice Cents
}
