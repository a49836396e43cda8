package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PricePlaces is the number of fractional digits carried by every price in
// the system. One minor unit (a cent) is 10^-PricePlaces major units.
const PricePlaces = 2

// Cents is a price or amount in minor currency units. This is the
// representation exchanged with the matching engine.
type Cents = int64

// MalformedPriceError reports a price or cash string that is not a decimal
// with at most two fractional digits.
type MalformedPriceError struct {
	Input  string
	Reason string
}

func (e *MalformedPriceError) Error() string {
	return fmt.Sprintf("malformed price %q: %s", e.Input, e.Reason)
}

// ParsePrice parses a decimal string with at most PricePlaces fractional
// digits. Values are never truncated: "1.005" is rejected.
func ParsePrice(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, &MalformedPriceError{Input: s, Reason: "empty"}
	}
	if i := strings.IndexByte(trimmed, '.'); i >= 0 && len(trimmed)-i-1 > PricePlaces {
		return decimal.Zero, &MalformedPriceError{Input: s, Reason: "more than two fractional digits"}
	}
	if strings.ContainsAny(trimmed, "eE") {
		return decimal.Zero, &MalformedPriceError{Input: s, Reason: "exponent notation not allowed"}
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &MalformedPriceError{Input: s, Reason: "not a decimal"}
	}
	return d, nil
}

// ParseLimitPrice parses a limit price string into cents. Limit prices must
// also be strictly positive.
func ParseLimitPrice(s string) (Cents, error) {
	d, err := ParsePrice(s)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() {
		return 0, &MalformedPriceError{Input: s, Reason: "must be positive"}
	}
	return PriceToCents(d), nil
}

// CentsToPrice converts minor units to a two-decimal major-unit price.
func CentsToPrice(c Cents) decimal.Decimal {
	return decimal.New(c, -PricePlaces)
}

// PriceToCents converts a major-unit price to minor units, rounding half away
// from zero when the price carries more precision than a cent.
func PriceToCents(d decimal.Decimal) Cents {
	return d.Shift(PricePlaces).Round(0).IntPart()
}

// FormatPrice renders a price with exactly two fractional digits.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PricePlaces)
}
