package strategy

import (
	"fmt"
	"strings"

	"trading-backtest/internal/model"
)

// Info describes a strategy and its tunable parameters.
type Info struct {
	Name        string
	Description string
	Parameters  []ParamInfo
}

type ParamInfo struct {
	Name        string
	Type        string // "int"
	Description string
	Default     any
}

// Catalog lists the strategies Build understands.
func Catalog() []Info {
	return []Info{
		{
			Name:        "ma_crossover",
			Description: "Moving-average crossover. Buys a fixed lot when the short mean of closes crosses above the long mean, sells it when it crosses back below.",
			Parameters: []ParamInfo{
				{Name: "short_window", Type: "int", Description: "Closes in the short mean", Default: 10},
				{Name: "long_window", Type: "int", Description: "Closes in the long mean", Default: 30},
				{Name: "lot_size", Type: "int", Description: "Quantity per order", Default: 10},
			},
		},
	}
}

// Build constructs a strategy by name. Params come from YAML or JSON, so
// numbers may arrive as int or float64.
func Build(name string, params map[string]any, symbol string, trader model.TraderID) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ma_crossover", "crossover":
		return NewCrossover(CrossoverParams{
			Symbol:      symbol,
			ShortWindow: int(num(params, "short_window", 10)),
			LongWindow:  int(num(params, "long_window", 30)),
			LotSize:     int64(num(params, "lot_size", 10)),
			TraderID:    trader,
		})
	default:
		return nil, fmt.Errorf("unsupported strategy: %q", name)
	}
}

// Known reports whether Build accepts name.
func Known(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ma_crossover", "crossover":
		return true
	}
	return false
}

func num(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	}
	return def
}
