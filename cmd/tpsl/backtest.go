package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/app"
	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/collector"
	"github.com/newthinker/tpsl/internal/strategy"
)

var (
	backtestSymbols  []string
	backtestFrom     string
	backtestTo       string
	backtestInterval string
	backtestSource   string
	backtestArchive  bool
	backtestTrades   bool
	backtestJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run backtest on a strategy",
	Long: `Run a strategy against historical data and show performance statistics.
Without a strategy argument every enabled strategy is run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&backtestSymbols, "symbol", nil, "symbols to backtest (default: backtest.symbols)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start, YYYY-MM-DD or RFC3339 (default: to - backtest.lookback)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end, YYYY-MM-DD or RFC3339 (default: now)")
	backtestCmd.Flags().StringVar(&backtestInterval, "interval", "", "bar interval (default: backtest.interval)")
	backtestCmd.Flags().StringVar(&backtestSource, "source", "", "collector name: binance, okx or timescale (default: backtest.source)")
	backtestCmd.Flags().BoolVar(&backtestArchive, "archive", false, "save reports to the archive")
	backtestCmd.Flags().BoolVar(&backtestTrades, "trades", false, "list individual trades")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "print results as JSON")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if backtestArchive {
		cfg.Archive.Enabled = true
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	strats, err := selectStrategies(a.Strategies(), args)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	if backtestTo != "" {
		if end, err = parseDate(backtestTo); err != nil {
			return err
		}
	}
	start := end.Add(-cfg.Backtest.Lookback)
	if backtestFrom != "" {
		if start, err = parseDate(backtestFrom); err != nil {
			return err
		}
	}
	if !end.After(start) {
		return fmt.Errorf("end date must be after start date")
	}

	symbols := cfg.Backtest.Symbols
	if len(backtestSymbols) > 0 {
		symbols = make([]string, len(backtestSymbols))
		for i, s := range backtestSymbols {
			symbols[i] = collector.NormalizeSymbol(s, "USDT")
		}
	}
	interval := backtestInterval
	if interval == "" {
		interval = cfg.Backtest.Interval
	}

	bt, err := a.Backtester(backtestSource)
	if err != nil {
		return err
	}

	runCtx := ctx
	if cfg.Backtest.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Backtest.Timeout)
		defer cancel()
	}

	var results []*backtest.Result
	for _, s := range strats {
		batch, err := bt.RunBatch(runCtx, s, symbols, start, end, interval)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		results = append(results, batch...)
	}

	if reports := a.Reports(); reports != nil && backtestArchive {
		for _, r := range results {
			id, err := reports.Save(runCtx, r)
			if err != nil {
				return err
			}
			log.Debug("report saved", zap.String("id", id))
		}
	}

	out := cmd.OutOrStdout()
	if backtestJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	fmt.Fprintf(out, "=== TPSL Backtest: %s to %s (%s) ===\n\n",
		start.Format(time.RFC3339), end.Format(time.RFC3339), interval)
	if err := printSummary(out, results); err != nil {
		return err
	}
	if backtestTrades {
		for _, r := range results {
			if err := printTrades(out, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func selectStrategies(reg *strategy.Registry, args []string) ([]strategy.Strategy, error) {
	if len(args) == 0 {
		all := reg.GetAll()
		if len(all) == 0 {
			return nil, fmt.Errorf("no strategies enabled")
		}
		return all, nil
	}
	s, err := reg.MustGet(args[0])
	if err != nil {
		return nil, err
	}
	return []strategy.Strategy{s}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or RFC3339): %w", s, err)
	}
	return t, nil
}
