// Package data provides price sources: lazy, ordered and restartable
// sequences of bars for a single symbol.
package data

import (
	"iter"

	"trading-backtest/internal/model"
)

// Slice yields bars from memory. Ranging twice yields the same bars twice.
func Slice(bars []model.Bar) iter.Seq2[model.Bar, error] {
	return func(yield func(model.Bar, error) bool) {
		for _, b := range bars {
			if !yield(b, nil) {
				return
			}
		}
	}
}

// Collect drains a source. It stops at the first error.
func Collect(src iter.Seq2[model.Bar, error]) ([]model.Bar, error) {
	var out []model.Bar
	for b, err := range src {
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Take yields at most n bars from src. n <= 0 yields everything.
func Take(src iter.Seq2[model.Bar, error], n int) iter.Seq2[model.Bar, error] {
	if n <= 0 {
		return src
	}
	return func(yield func(model.Bar, error) bool) {
		i := 0
		for b, err := range src {
			if i >= n {
				return
			}
			if !yield(b, err) || err != nil {
				return
			}
			i++
		}
	}
}
