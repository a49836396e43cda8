package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV sample for a fixed interval of a single symbol.
type Bar struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

func (b Bar) Validate() error {
	if b.Timestamp.IsZero() {
		return errors.New("bar timestamp is zero")
	}
	if b.Low.GreaterThan(b.High) {
		return errors.New("bar low is above high")
	}
	if !b.Low.IsPositive() {
		return errors.New("bar low must be > 0")
	}
	if b.Close.LessThan(b.Low) || b.Close.GreaterThan(b.High) {
		return errors.New("bar close outside [low, high]")
	}
	if b.Volume < 0 {
		return errors.New("bar volume must be >= 0")
	}
	return nil
}
