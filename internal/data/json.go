package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trading-backtest/internal/model"
)

// LoadJSON reads a JSON array of bars, or an object with a "bars" array.
func LoadJSON(path string) ([]model.Bar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(raw)
}

func ParseJSON(raw []byte) ([]model.Bar, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var bars []model.Bar
		if err := json.Unmarshal(raw, &bars); err != nil {
			return nil, fmt.Errorf("decode bars: %w", err)
		}
		return bars, nil
	}
	var wrapped struct {
		Bars []model.Bar `json:"bars"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	return wrapped.Bars, nil
}

// Load picks a loader by file extension.
func Load(path string) ([]model.Bar, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(path)
	case ".csv":
		return LoadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported data file %s", path)
	}
}
