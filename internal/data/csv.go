package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-backtest/internal/model"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CSVSource streams bars from a CSV file with Date/Open/High/Low/Close/
// Volume columns, as written by yfinance. Header names are matched case
// insensitively and rows before the header are skipped. The file is
// re-opened on every range, so the source can be replayed.
type CSVSource struct {
	Path string
}

func OpenCSV(path string) (*CSVSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &CSVSource{Path: path}, nil
}

func (s *CSVSource) Bars() iter.Seq2[model.Bar, error] {
	return func(yield func(model.Bar, error) bool) {
		f, err := os.Open(s.Path)
		if err != nil {
			yield(model.Bar{}, err)
			return
		}
		defer f.Close()
		for b, err := range ReadCSV(f) {
			if err != nil {
				err = fmt.Errorf("%s: %w", s.Path, err)
			}
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}

// LoadCSV reads every bar in path.
func LoadCSV(path string) ([]model.Bar, error) {
	src, err := OpenCSV(path)
	if err != nil {
		return nil, err
	}
	return Collect(src.Bars())
}

type columns struct {
	ts, open, high, low, close, volume int
}

// ReadCSV parses bars from r. It is single-use since r is consumed.
func ReadCSV(r io.Reader) iter.Seq2[model.Bar, error] {
	return func(yield func(model.Bar, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true

		var (
			cols    *columns
			started bool
		)
		for {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				if cols == nil {
					yield(model.Bar{}, errors.New("no header with open/high/low/close columns"))
				}
				return
			}
			if err != nil {
				yield(model.Bar{}, err)
				return
			}
			line, _ := cr.FieldPos(0)

			if cols == nil {
				cols = headerColumns(rec)
				continue
			}

			ts, ok := parseTimestamp(field(rec, cols.ts))
			if !ok {
				// yfinance writes "Ticker" and "Date" rows under the header
				if !started {
					continue
				}
				yield(model.Bar{}, fmt.Errorf("line %d: bad timestamp %q", line, field(rec, cols.ts)))
				return
			}
			started = true

			bar, err := parseBar(ts, rec, cols)
			if err != nil {
				yield(model.Bar{}, fmt.Errorf("line %d: %w", line, err))
				return
			}
			if !yield(bar, nil) {
				return
			}
		}
	}
}

func headerColumns(rec []string) *columns {
	c := columns{ts: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range rec {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "datetime", "timestamp", "time":
			c.ts = i
		case "open":
			c.open = i
		case "high":
			c.high = i
		case "low":
			c.low = i
		case "close":
			c.close = i
		case "volume":
			c.volume = i
		}
	}
	if c.open < 0 || c.high < 0 || c.low < 0 || c.close < 0 {
		return nil
	}
	if c.ts < 0 {
		// index column without a name
		c.ts = 0
	}
	return &c
}

func parseBar(ts time.Time, rec []string, c *columns) (model.Bar, error) {
	bar := model.Bar{Timestamp: ts}
	for _, f := range []struct {
		name string
		idx  int
		dst  *decimal.Decimal
	}{
		{"open", c.open, &bar.Open},
		{"high", c.high, &bar.High},
		{"low", c.low, &bar.Low},
		{"close", c.close, &bar.Close},
	} {
		d, err := decimal.NewFromString(field(rec, f.idx))
		if err != nil {
			return model.Bar{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	if c.volume >= 0 {
		v, err := parseVolume(field(rec, c.volume))
		if err != nil {
			return model.Bar{}, fmt.Errorf("volume: %w", err)
		}
		bar.Volume = v
	}
	return bar, nil
}

func parseVolume(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
