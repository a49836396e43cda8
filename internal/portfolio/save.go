package portfolio

import (
	"errors"
	"fmt"
)

// ResultWriter persists the two run logs. Column order for both is fixed:
// history is (timestamp, value); trades is (timestamp, symbol, side, price,
// quantity).
type ResultWriter interface {
	WriteHistory(points []HistoryPoint) error
	WriteTrades(trades []TradeRecord) error
}

// SaveError names the log that failed to persist.
type SaveError struct {
	Log string // "history" or "trades"
	Err error
}

func (e *SaveError) Error() string { return fmt.Sprintf("save %s: %v", e.Log, e.Err) }

func (e *SaveError) Unwrap() error { return e.Err }

// SaveResults writes both logs. Both writes are always attempted; the
// returned error joins a *SaveError for each one that failed.
func (p *Portfolio) SaveResults(w ResultWriter) error {
	history := p.History()
	trades := p.Trades()

	var errs []error
	if err := w.WriteHistory(history); err != nil {
		errs = append(errs, &SaveError{Log: "history", Err: err})
	}
	if err := w.WriteTrades(trades); err != nil {
		errs = append(errs, &SaveError{Log: "trades", Err: err})
	}
	return errors.Join(errs...)
}
