package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"trading-backtest/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	trades []model.TradeExecutedEvent
	market []model.MarketDataEvent
}

func (r *recorder) onTrade(ev model.TradeExecutedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, ev)
}

func (r *recorder) onMarket(ev model.MarketDataEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.market = append(r.market, ev)
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	e := New()
	rec := &recorder{}
	e.SubscribeTradeExecuted(rec.onTrade)
	e.SubscribeMarketData(rec.onMarket)
	e.Start()
	t.Cleanup(e.Stop)
	return e, rec
}

func TestSubmitAssignsIncreasingIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideBuy, "10.00", 5, 1))
	require.NoError(t, err)
	b, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideBuy, "10.00", 5, 1))
	require.NoError(t, err)
	require.Greater(t, b, a)
}

func TestSubmitRejectsMalformedLimitPrice(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Submit(context.Background(), model.NewLimitOrder("AAPL", model.SideBuy, "10.001", 5, 1))
	var mpe *model.MalformedPriceError
	require.True(t, errors.As(err, &mpe))

	_, err = e.Submit(context.Background(), model.NewMarketOrder("AAPL", model.SideBuy, 0, 1))
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestMarketOrderMatchesRestingLimit(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	restID, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideSell, "150.00", 100, 2))
	require.NoError(t, err)
	aggID, err := e.Submit(ctx, model.NewMarketOrder("AAPL", model.SideBuy, 10, 1))
	require.NoError(t, err)
	require.NoError(t, e.Flush(ctx))

	require.Len(t, rec.trades, 1)
	tr := rec.trades[0]
	require.Equal(t, model.Cents(15000), tr.Price)
	require.Equal(t, int64(10), tr.Quantity)
	require.Equal(t, model.SideBuy, tr.AggressingSide)
	require.Equal(t, model.TraderID(1), tr.AggressingTrader)
	require.Equal(t, model.TraderID(2), tr.RestingTrader)
	require.Equal(t, aggID, tr.AggressingID)
	require.Equal(t, restID, tr.RestingID)

	require.Equal(t, []model.MarketDataEvent{{Symbol: "AAPL", LastPrice: 15000}}, rec.market)

	snap, err := e.Snapshot(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, snap.BestAsk)
	require.Equal(t, int64(90), snap.BestAsk.Quantity)
	require.Nil(t, snap.BestBid)
}

func TestPriceTimePriority(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideSell, "101.00", 5, 3))
	require.NoError(t, err)
	_, err = e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideSell, "100.00", 5, 2))
	require.NoError(t, err)
	_, err = e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideSell, "100.00", 5, 4))
	require.NoError(t, err)
	_, err = e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideBuy, "101.00", 12, 1))
	require.NoError(t, err)
	require.NoError(t, e.Flush(ctx))

	require.Len(t, rec.trades, 3)
	require.Equal(t, model.TraderID(2), rec.trades[0].RestingTrader)
	require.Equal(t, model.TraderID(4), rec.trades[1].RestingTrader)
	require.Equal(t, model.TraderID(3), rec.trades[2].RestingTrader)
	require.Equal(t, model.Cents(10100), rec.trades[2].Price)
	require.Equal(t, int64(2), rec.trades[2].Quantity)

	// last price changed 100.00 -> 101.00 once each
	require.Len(t, rec.market, 2)
}

func TestNonCrossingLimitRests(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideSell, "100.00", 5, 2))
	require.NoError(t, err)
	_, err = e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideBuy, "99.99", 5, 1))
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx, "AAPL")
	require.NoError(t, err)
	require.Empty(t, rec.trades)
	require.Equal(t, model.Cents(9999), snap.BestBid.Price)
	require.Equal(t, model.Cents(10000), snap.BestAsk.Price)
	require.Equal(t, 2, snap.Resting)
}

func TestMarketOrderWithoutLiquidityIsDropped(t *testing.T) {
	e, rec := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Submit(ctx, model.NewMarketOrder("AAPL", model.SideBuy, 10, 1))
	require.NoError(t, err)

	snap, err := e.Snapshot(ctx, "AAPL")
	require.NoError(t, err)
	require.Empty(t, rec.trades)
	require.Zero(t, snap.Resting)
}

func TestCancelIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	id, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideBuy, "10.00", 5, 1))
	require.NoError(t, err)
	require.NoError(t, e.Cancel(ctx, id))
	require.NoError(t, e.Cancel(ctx, id))
	require.NoError(t, e.Cancel(ctx, 9999))

	snap, err := e.Snapshot(ctx, "AAPL")
	require.NoError(t, err)
	require.Zero(t, snap.Resting)
	require.Nil(t, snap.BestBid)
}

func TestStopDrainsAndRejectsLaterCalls(t *testing.T) {
	e := New()
	rec := &recorder{}
	e.SubscribeTradeExecuted(rec.onTrade)
	ctx := context.Background()

	// queued before Start
	_, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideSell, "10.00", 5, 2))
	require.NoError(t, err)
	_, err = e.Submit(ctx, model.NewMarketOrder("AAPL", model.SideBuy, 5, 1))
	require.NoError(t, err)

	e.Start()
	e.Stop()
	e.Stop()

	require.Len(t, rec.trades, 1)
	_, err = e.Submit(ctx, model.NewMarketOrder("AAPL", model.SideBuy, 5, 1))
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, e.Cancel(ctx, 1), ErrStopped)
	require.ErrorIs(t, e.Flush(ctx), ErrStopped)
}

func TestFlushBeforeStart(t *testing.T) {
	e := New()
	require.ErrorIs(t, e.Flush(context.Background()), ErrNotStarted)
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	e := New()
	rec := &recorder{}
	e.SubscribeTradeExecuted(func(model.TradeExecutedEvent) { panic("boom") })
	e.SubscribeTradeExecuted(rec.onTrade)
	e.Start()
	defer e.Stop()
	ctx := context.Background()

	_, err := e.Submit(ctx, model.NewLimitOrder("AAPL", model.SideBuy, "10.00", 5, 2))
	require.NoError(t, err)
	_, err = e.Submit(ctx, model.NewMarketOrder("AAPL", model.SideSell, 5, 1))
	require.NoError(t, err)
	require.NoError(t, e.Flush(ctx))
	require.Len(t, rec.trades, 1)
}
