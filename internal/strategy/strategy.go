package strategy

import "trading-backtest/internal/model"

type Context struct {
	Index int
	Bar   model.Bar
}

// Strategy consumes one bar at a time and returns at most one order to
// submit for that bar.
type Strategy interface {
	Name() string
	Decide(ctx Context) *model.Order
}
