package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trading-backtest/internal/exchange"
	"trading-backtest/internal/model"
)

type call struct {
	op    string
	order model.Order
	id    model.OrderID
}

type fakeRouter struct {
	next      model.OrderID
	calls     []call
	failOn    string
	cancelErr error
}

func (f *fakeRouter) Submit(_ context.Context, o model.Order) (model.OrderID, error) {
	if f.failOn == string(o.Side) {
		return 0, errors.New("rejected")
	}
	f.next++
	f.calls = append(f.calls, call{op: "submit", order: o, id: f.next})
	return f.next, nil
}

func (f *fakeRouter) Cancel(_ context.Context, id model.OrderID) error {
	f.calls = append(f.calls, call{op: "cancel", id: id})
	return f.cancelErr
}

func testParams() Params {
	return Params{Symbol: "AAPL", BidTrader: 9001, AskTrader: 9002, QuoteQuantity: DefaultQuoteQuantity}
}

func bar(low, high string) model.Bar {
	l := decimal.RequireFromString(low)
	h := decimal.RequireFromString(high)
	return model.Bar{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: l, High: h, Low: l, Close: h, Volume: 1}
}

func TestParamsValidate(t *testing.T) {
	p := testParams()
	require.NoError(t, p.Validate())

	bad := p
	bad.Symbol = ""
	require.Error(t, bad.Validate())

	bad = p
	bad.AskTrader = bad.BidTrader
	require.Error(t, bad.Validate())

	bad = p
	bad.QuoteQuantity = 0
	require.Error(t, bad.Validate())

	_, err := NewSimulator(&fakeRouter{}, bad)
	require.Error(t, err)
}

func TestOnBarPostsQuotesAtRange(t *testing.T) {
	r := &fakeRouter{}
	s, err := NewSimulator(r, testParams())
	require.NoError(t, err)

	require.NoError(t, s.OnBar(context.Background(), bar("99.50", "101.25")))
	require.Len(t, r.calls, 2)

	bid, ask := r.calls[0].order, r.calls[1].order
	require.Equal(t, model.SideBuy, bid.Side)
	require.Equal(t, model.OrderLimit, bid.Kind)
	require.Equal(t, "99.50", bid.Price)
	require.Equal(t, model.TraderID(9001), bid.TraderID)
	require.Equal(t, DefaultQuoteQuantity, bid.Quantity)

	require.Equal(t, model.SideSell, ask.Side)
	require.Equal(t, "101.25", ask.Price)
	require.Equal(t, model.TraderID(9002), ask.TraderID)
}

func TestOnBarCancelsPreviousQuotesFirst(t *testing.T) {
	r := &fakeRouter{}
	s, err := NewSimulator(r, testParams())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.OnBar(ctx, bar("10.00", "11.00")))
	require.NoError(t, s.OnBar(ctx, bar("10.50", "11.50")))

	ops := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		ops = append(ops, c.op)
	}
	require.Equal(t, []string{"submit", "submit", "cancel", "cancel", "submit", "submit"}, ops)
	require.Equal(t, model.OrderID(1), r.calls[2].id)
	require.Equal(t, model.OrderID(2), r.calls[3].id)
}

func TestCleanupIsIdempotent(t *testing.T) {
	r := &fakeRouter{}
	s, err := NewSimulator(r, testParams())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Cleanup(ctx))
	require.Empty(t, r.calls)

	require.NoError(t, s.OnBar(ctx, bar("10.00", "11.00")))
	require.NoError(t, s.Cleanup(ctx))
	require.NoError(t, s.Cleanup(ctx))
	require.Len(t, r.calls, 4)
}

func TestCleanupClearsIdsEvenOnError(t *testing.T) {
	r := &fakeRouter{}
	s, err := NewSimulator(r, testParams())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.OnBar(ctx, bar("10.00", "11.00")))
	r.cancelErr = exchange.ErrStopped
	err = s.Cleanup(ctx)
	require.ErrorIs(t, err, exchange.ErrStopped)

	r.cancelErr = nil
	require.NoError(t, s.Cleanup(ctx))
}

func TestOnBarPropagatesSubmitError(t *testing.T) {
	r := &fakeRouter{failOn: string(model.SideSell)}
	s, err := NewSimulator(r, testParams())
	require.NoError(t, err)

	err = s.OnBar(context.Background(), bar("10.00", "11.00"))
	require.ErrorContains(t, err, "synthetic ask")

	// the bid that did get posted is still tracked for cleanup
	r.failOn = ""
	require.NoError(t, s.Cleanup(context.Background()))
	require.Equal(t, "cancel", r.calls[len(r.calls)-1].op)
}

func TestQuotePrices(t *testing.T) {
	cases := []struct {
		low, high string
		bid, ask  string
	}{
		{"10.00", "11.00", "10.00", "11.00"},
		{"10.004", "10.996", "10.00", "11.00"},
		{"10.00", "10.00", "10.00", "10.01"},
		{"10.001", "10.004", "10.00", "10.01"},
	}
	for _, tc := range cases {
		bid, ask := QuotePrices(bar(tc.low, tc.high))
		require.Equal(t, tc.bid, model.FormatPrice(bid), "bid for %s/%s", tc.low, tc.high)
		require.Equal(t, tc.ask, model.FormatPrice(ask), "ask for %s/%s", tc.low, tc.high)
	}
}

func TestQuotesTradeAgainstRealEngine(t *testing.T) {
	eng := exchange.New()
	var trades []model.TradeExecutedEvent
	eng.SubscribeTradeExecuted(func(ev model.TradeExecutedEvent) { trades = append(trades, ev) })
	eng.Start()
	t.Cleanup(eng.Stop)

	s, err := NewSimulator(eng, testParams())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.OnBar(ctx, bar("99.00", "101.00")))
	_, err = eng.Submit(ctx, model.NewMarketOrder("AAPL", model.SideBuy, 10, 1))
	require.NoError(t, err)
	require.NoError(t, eng.Flush(ctx))

	require.Len(t, trades, 1)
	require.Equal(t, model.Cents(10100), trades[0].Price)
	require.Equal(t, model.TraderID(9002), trades[0].RestingTrader)

	require.NoError(t, s.Cleanup(ctx))
	snap, err := eng.Snapshot(ctx, "AAPL")
	require.NoError(t, err)
	require.Equal(t, 0, snap.Resting)
}
