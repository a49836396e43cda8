package model

import (
	"errors"
	"fmt"
	"strconv"
)

// TraderID identifies a participant in the simulated book. IDs are passed to
// every component explicitly; there is no process-wide registry.
type TraderID uint32

// OrderID is the opaque identifier returned by the matching engine.
type OrderID uint64

func (id OrderID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Side is the direction of an order or fill.
// Keep these values stable; they are written to the trade log.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Sign is +1 for BUY and -1 for SELL.
func (s Side) Sign() int64 {
	if s == SideBuy {
		return 1
	}
	return -1
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

type OrderKind string

const (
	OrderLimit  OrderKind = "LIMIT"
	OrderMarket OrderKind = "MARKET"
)

// Order is a submission to the matching engine. Price is only meaningful for
// LIMIT orders and is kept as the caller's string so the engine can reject
// anything finer than a cent.
type Order struct {
	Symbol   string
	Kind     OrderKind
	Side     Side
	Price    string
	Quantity int64
	TraderID TraderID
}

// NewMarketOrder builds a MARKET order.
func NewMarketOrder(symbol string, side Side, qty int64, trader TraderID) Order {
	return Order{Symbol: symbol, Kind: OrderMarket, Side: side, Quantity: qty, TraderID: trader}
}

// NewLimitOrder builds a LIMIT order. The price is validated on submission.
func NewLimitOrder(symbol string, side Side, price string, qty int64, trader TraderID) Order {
	return Order{Symbol: symbol, Kind: OrderLimit, Side: side, Price: price, Quantity: qty, TraderID: trader}
}

// Validate checks everything except the limit price string.
func (o Order) Validate() error {
	if o.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !o.Side.Valid() {
		return fmt.Errorf("invalid side %q", o.Side)
	}
	if o.Kind != OrderLimit && o.Kind != OrderMarket {
		return fmt.Errorf("invalid order kind %q", o.Kind)
	}
	if o.Quantity <= 0 {
		return errors.New("quantity must be > 0")
	}
	return nil
}
