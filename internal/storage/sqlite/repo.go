// Package sqlite stores the equity history and trade log of a run in a
// SQLite file, one table per log with the same columns as the CSV output.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"trading-backtest/internal/model"
	"trading-backtest/internal/portfolio"
)

type Repo struct {
	db *sql.DB
}

var _ portfolio.ResultWriter = (*Repo)(nil)

func New(path string) (*Repo, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

// Prices are kept as TEXT so that no value passes through a float.
func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS history (
  seq INTEGER PRIMARY KEY,
  timestamp TEXT NOT NULL,
  value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
  seq INTEGER PRIMARY KEY,
  timestamp TEXT NOT NULL,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  price TEXT NOT NULL,
  quantity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
`)
	return err
}

// WriteHistory replaces the stored history with points.
func (r *Repo) WriteHistory(points []portfolio.HistoryPoint) error {
	return r.WriteHistoryContext(context.Background(), points)
}

// WriteTrades replaces the stored trade log with trades.
func (r *Repo) WriteTrades(trades []portfolio.TradeRecord) error {
	return r.WriteTradesContext(context.Background(), trades)
}

func (r *Repo) WriteHistoryContext(ctx context.Context, points []portfolio.HistoryPoint) error {
	return r.replace(ctx, "history", `INSERT INTO history(seq, timestamp, value) VALUES(?,?,?)`,
		len(points), func(i int) []any {
			p := points[i]
			return []any{i, fmtTime(p.Timestamp), model.FormatPrice(p.Value)}
		})
}

func (r *Repo) WriteTradesContext(ctx context.Context, trades []portfolio.TradeRecord) error {
	return r.replace(ctx, "trades", `INSERT INTO trades(seq, timestamp, symbol, side, price, quantity) VALUES(?,?,?,?,?,?)`,
		len(trades), func(i int) []any {
			t := trades[i]
			return []any{i, fmtTime(t.Timestamp), t.Symbol, string(t.Side), model.FormatPrice(t.Price), t.Quantity}
		})
}

// replace swaps a table's rows in one transaction.
func (r *Repo) replace(ctx context.Context, table, insert string, n int, row func(int) []any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", table, i, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) History(ctx context.Context) ([]portfolio.HistoryPoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, value FROM history ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []portfolio.HistoryPoint
	for rows.Next() {
		var ts, value string
		if err := rows.Scan(&ts, &value); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, err
		}
		out = append(out, portfolio.HistoryPoint{Timestamp: t, Value: v})
	}
	return out, rows.Err()
}

func (r *Repo) Trades(ctx context.Context) ([]portfolio.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, symbol, side, price, quantity FROM trades ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []portfolio.TradeRecord
	for rows.Next() {
		var (
			ts, symbol, side, price string
			qty                     int64
		)
		if err := rows.Scan(&ts, &symbol, &side, &price, &qty); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		out = append(out, portfolio.TradeRecord{
			Timestamp: t,
			Symbol:    symbol,
			Side:      model.Side(side),
			Price:     p,
			Quantity:  qty,
		})
	}
	return out, rows.Err()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %s: %w", strconv.Quote(s), err)
	}
	return t, nil
}
