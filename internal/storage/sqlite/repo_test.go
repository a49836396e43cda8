package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"trading-backtest/internal/model"
	"trading-backtest/internal/portfolio"
)

func newRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "nested", "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestWriteAndReadHistory(t *testing.T) {
	repo := newRepo(t)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	points := []portfolio.HistoryPoint{
		{Timestamp: ts, Value: decimal.RequireFromString("100000.00")},
		{Timestamp: ts.AddDate(0, 0, 1), Value: decimal.RequireFromString("99995.5")},
	}
	require.NoError(t, repo.WriteHistory(points))

	got, err := repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, ts, got[0].Timestamp)
	require.Equal(t, "99995.50", model.FormatPrice(got[1].Value))
}

func TestWriteReplacesPreviousRun(t *testing.T) {
	repo := newRepo(t)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	trade := portfolio.TradeRecord{
		Timestamp: ts, Symbol: "AAPL", Side: model.SideBuy,
		Price: decimal.RequireFromString("150.00"), Quantity: 10,
	}
	require.NoError(t, repo.WriteTrades([]portfolio.TradeRecord{trade, trade}))

	trade.Side = model.SideSell
	require.NoError(t, repo.WriteTrades([]portfolio.TradeRecord{trade}))

	got, err := repo.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.SideSell, got[0].Side)
	require.Equal(t, "150.00", model.FormatPrice(got[0].Price))
	require.Equal(t, int64(10), got[0].Quantity)
}

func TestSaveResultsThroughRepo(t *testing.T) {
	repo := newRepo(t)
	p, err := portfolio.New("1000.00", 1)
	require.NoError(t, err)
	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	p.SetBarTimestamp(ts)
	p.OnFill(model.TradeExecutedEvent{
		Symbol: "AAPL", Price: 1000, Quantity: 1,
		AggressingSide: model.SideSell, AggressingTrader: 9001, RestingTrader: 1,
	})
	p.LogState(ts)

	require.NoError(t, p.SaveResults(repo))

	trades, err := repo.Trades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, model.SideBuy, trades[0].Side)

	history, err := repo.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "1000.00", model.FormatPrice(history[0].Value))
}

func TestWriteAfterCloseFails(t *testing.T) {
	repo, err := New(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	require.NoError(t, repo.Close())
	require.Error(t, repo.WriteHistory(nil))
}
