package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"trading-backtest/internal/backtest"
	"trading-backtest/internal/config"
	"trading-backtest/internal/data"
	"trading-backtest/internal/logger"
	"trading-backtest/internal/model"
	"trading-backtest/internal/portfolio"
	"trading-backtest/internal/storage/sqlite"
	"trading-backtest/internal/strategy"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "backtest":
		os.Exit(cmdBacktest(os.Args[2:]))
	case "strategies":
		cmdStrategies()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli backtest --config examples/config.yaml [--data data/AAPL.csv] [--n 250]")
	fmt.Println("               [--history csv/backtest_history.csv] [--trades csv/backtest_trades.csv] [--sqlite results.db]")
	fmt.Println("  cli strategies")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - data files are yfinance-style CSV (Date,Open,High,Low,Close,Volume) or a JSON array of bars")
	fmt.Println("  - history and trades logs are written even when a run fails part way")
}

func cmdBacktest(args []string) int {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config (optional with --symbol and --data)")
	symbol := fs.String("symbol", "", "Symbol to trade; overrides the config")
	dataPath := fs.String("data", "", "Price data file; overrides data_file from the config")
	n := fs.Int("n", 0, "Optional: limit to first N bars (0=all)")
	historyPath := fs.String("history", "", "Equity history CSV; overrides output.history_csv")
	tradesPath := fs.String("trades", "", "Trade log CSV; overrides output.trades_csv")
	sqlitePath := fs.String("sqlite", "", "Also store both logs in this SQLite file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *symbol, *dataPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if *historyPath != "" {
		cfg.Output.HistoryCSV = *historyPath
	}
	if *tradesPath != "" {
		cfg.Output.TradesCSV = *tradesPath
	}
	if *sqlitePath != "" {
		cfg.Output.SQLitePath = *sqlitePath
	}

	bars, err := openBars(cfg.DataFile)
	if err != nil {
		log.Error().Err(err).Str("data", cfg.DataFile).Msg("open price data")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, runErr := backtest.Execute(ctx, cfg, data.Take(bars, *n))
	if res == nil {
		log.Error().Err(runErr).Msg("backtest could not start")
		return 1
	}

	// Logs are kept even for a failed run, for post-mortem analysis.
	if err := save(res, cfg.Output); err != nil {
		log.Error().Err(err).Msg("save results")
		runErr = errors.Join(runErr, err)
	}

	fmt.Printf("Bars=%d Trades=%d\n", res.Bars, res.TradeCount)
	fmt.Printf("Final value=$%s PnL=$%s\n", model.FormatPrice(res.FinalValue), model.FormatPrice(res.PnL))
	fmt.Printf("Wrote %s and %s\n", cfg.Output.HistoryCSV, cfg.Output.TradesCSV)

	if runErr != nil {
		var re *backtest.RunError
		if errors.As(runErr, &re) {
			log.Error().Err(re.Err).
				Int("bar", re.Index).
				Time("bar_time", re.BarTime).
				Str("stage", string(re.Stage)).
				Msg("backtest aborted")
		} else {
			log.Error().Err(runErr).Msg("backtest failed")
		}
		return 1
	}
	return 0
}

func loadConfig(path, symbol, dataPath string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.LoadUnchecked(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}
	if symbol != "" {
		cfg.Symbol = symbol
	}
	if dataPath != "" {
		cfg.DataFile = dataPath
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DataFile == "" {
		return nil, errors.New("no price data: set data_file in the config or pass --data")
	}
	return cfg, nil
}

// openBars streams CSV files lazily; JSON files are loaded whole.
func openBars(path string) (iter.Seq2[model.Bar, error], error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		src, err := data.OpenCSV(path)
		if err != nil {
			return nil, err
		}
		return src.Bars(), nil
	}
	bars, err := data.Load(path)
	if err != nil {
		return nil, err
	}
	return data.Slice(bars), nil
}

func save(res *backtest.Result, out config.OutputConfig) error {
	writers := []portfolio.ResultWriter{backtest.CSVWriter{HistoryPath: out.HistoryCSV, TradesPath: out.TradesCSV}}
	if out.SQLitePath != "" {
		repo, err := sqlite.New(out.SQLitePath)
		if err != nil {
			return fmt.Errorf("open %s: %w", out.SQLitePath, err)
		}
		defer repo.Close()
		writers = append(writers, repo)
	}

	var errs []error
	for _, w := range writers {
		if err := res.Save(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cmdStrategies() {
	for _, info := range strategy.Catalog() {
		fmt.Printf("%s\n  %s\n", info.Name, info.Description)
		for _, p := range info.Parameters {
			fmt.Printf("  %-14s %-5s default=%-6v %s\n", p.Name, p.Type, p.Default, p.Description)
		}
	}
}
