package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trading-backtest/internal/model"
)

const yfinanceCSV = `Price,Close,High,Low,Open,Volume
Ticker,AAPL,AAPL,AAPL,AAPL,AAPL
Date,,,,,
2024-01-02,185.64,188.44,183.89,187.15,82488700
2024-01-03,184.25,185.88,183.43,184.22,58414500
2024-01-04,181.91,183.09,180.88,182.15,71983600
`

const plainCSV = `Date,Open,High,Low,Close,Adj Close,Volume
2020-01-02,74.06,75.15,73.80,75.09,73.06,135480400
2020-01-03,74.29,75.14,74.13,74.36,72.35,146322800
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadCSVSkipsYFinancePreamble(t *testing.T) {
	bars, err := Collect(ReadCSV(strings.NewReader(yfinanceCSV)))
	require.NoError(t, err)
	require.Len(t, bars, 3)

	b := bars[0]
	require.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), b.Timestamp)
	require.Equal(t, "187.15", b.Open.String())
	require.Equal(t, "188.44", b.High.String())
	require.Equal(t, "183.89", b.Low.String())
	require.Equal(t, "185.64", b.Close.String())
	require.Equal(t, int64(82488700), b.Volume)
	for _, b := range bars {
		require.NoError(t, b.Validate())
	}
}

func TestReadCSVPlainHeader(t *testing.T) {
	bars, err := Collect(ReadCSV(strings.NewReader(plainCSV)))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, "75.09", bars[0].Close.String())
}

func TestReadCSVCaseInsensitiveHeaderAndFloatVolume(t *testing.T) {
	in := "timestamp,open,high,low,close,volume\n2024-01-02 09:30:00,1.5,2,1,1.75,1.2e3\n"
	bars, err := Collect(ReadCSV(strings.NewReader(in)))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Equal(t, int64(1200), bars[0].Volume)
	require.Equal(t, 9, bars[0].Timestamp.Hour())
}

func TestReadCSVErrors(t *testing.T) {
	cases := map[string]string{
		"no header":     "a,b,c\n1,2,3\n",
		"bad price":     "Date,Open,High,Low,Close\n2024-01-02,1,2,x,1\n",
		"bad timestamp": "Date,Open,High,Low,Close\n2024-01-02,1,2,1,1\nnope,1,2,1,1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Collect(ReadCSV(strings.NewReader(in)))
			require.Error(t, err)
		})
	}
}

func TestCSVSourceIsRestartable(t *testing.T) {
	path := writeFile(t, "aapl.csv", yfinanceCSV)
	src, err := OpenCSV(path)
	require.NoError(t, err)

	first, err := Collect(src.Bars())
	require.NoError(t, err)
	second, err := Collect(src.Bars())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCSVSourceStopsEarly(t *testing.T) {
	path := writeFile(t, "aapl.csv", yfinanceCSV)
	src, err := OpenCSV(path)
	require.NoError(t, err)

	n := 0
	for _, err := range src.Bars() {
		require.NoError(t, err)
		n++
		break
	}
	require.Equal(t, 1, n)

	bars, err := Collect(Take(src.Bars(), 2))
	require.NoError(t, err)
	require.Len(t, bars, 2)
}

func TestOpenCSVMissingFile(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestParseJSON(t *testing.T) {
	arr := `[{"timestamp":"2024-01-02T00:00:00Z","open":"1.00","high":"2.00","low":"0.50","close":"1.50","volume":10}]`
	bars, err := ParseJSON([]byte(arr))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Equal(t, "1.5", bars[0].Close.String())

	obj := `{"bars":[{"timestamp":"2024-01-02T00:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":10}]}`
	bars, err = ParseJSON([]byte(obj))
	require.NoError(t, err)
	require.Len(t, bars, 1)

	_, err = ParseJSON([]byte(`[{"timestamp":"yesterday"}]`))
	require.Error(t, err)
}

func TestLoadByExtension(t *testing.T) {
	bars, err := Load(writeFile(t, "x.CSV", plainCSV))
	require.NoError(t, err)
	require.Len(t, bars, 2)

	_, err = Load(writeFile(t, "x.txt", plainCSV))
	require.Error(t, err)
}

func TestSliceReplays(t *testing.T) {
	in := []model.Bar{{Volume: 1}, {Volume: 2}}
	a, err := Collect(Slice(in))
	require.NoError(t, err)
	b, err := Collect(Slice(in))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 2)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache[int](time.Minute, 0)
	defer c.Close()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	require.False(t, ok)

	c.sweep()
	require.Zero(t, c.Len())
	c.Close()
}

func TestBarCacheReloadsChangedFile(t *testing.T) {
	path := writeFile(t, "aapl.csv", plainCSV)
	c := NewBarCache(time.Hour)
	defer c.Close()

	bars, err := c.Load(path)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	require.NoError(t, os.WriteFile(path, []byte(yfinanceCSV), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	bars, err = c.Load(path)
	require.NoError(t, err)
	require.Len(t, bars, 3)
}
