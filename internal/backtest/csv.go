package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trading-backtest/internal/model"
	"trading-backtest/internal/portfolio"
)

var (
	historyHeader = []string{"timestamp", "value"}
	tradesHeader  = []string{"timestamp", "symbol", "side", "price", "quantity"}
)

// CSVWriter writes the equity history and trade log as two CSV files.
// Each file is written to a temporary sibling and renamed into place, so a
// reader never sees a half-written log.
type CSVWriter struct {
	HistoryPath string
	TradesPath  string
}

var _ portfolio.ResultWriter = CSVWriter{}

func (w CSVWriter) WriteHistory(points []portfolio.HistoryPoint) error {
	rows := make([][]string, 0, len(points))
	for _, p := range points {
		rows = append(rows, []string{fmtTime(p.Timestamp), model.FormatPrice(p.Value)})
	}
	return writeCSV(w.HistoryPath, historyHeader, rows)
}

func (w CSVWriter) WriteTrades(trades []portfolio.TradeRecord) error {
	rows := make([][]string, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []string{
			fmtTime(t.Timestamp),
			t.Symbol,
			string(t.Side),
			model.FormatPrice(t.Price),
			strconv.FormatInt(t.Quantity, 10),
		})
	}
	return writeCSV(w.TradesPath, tradesHeader, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if path == "" {
		return fmt.Errorf("output path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
