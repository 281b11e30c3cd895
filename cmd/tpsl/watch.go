package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/app"
	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/collector"
	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/feed"
)

var (
	watchSymbol   string
	watchInterval string
	watchWarmup   int
)

var watchCmd = &cobra.Command{
	Use:   "watch [strategy]",
	Short: "Track a strategy live on the Binance kline stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSymbol, "symbol", "", "symbol to watch (required)")
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "kline interval (default: backtest.interval)")
	watchCmd.Flags().IntVar(&watchWarmup, "warmup", 200, "historical bars to replay before going live, 0 to skip")
	watchCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	strat, err := a.Strategies().MustGet(args[0])
	if err != nil {
		return err
	}
	bt, err := a.Backtester("")
	if err != nil {
		return err
	}

	symbol := collector.NormalizeSymbol(watchSymbol, "USDT")
	interval := watchInterval
	if interval == "" {
		interval = cfg.Backtest.Interval
	}

	tracker := bt.Track(strat)
	out := cmd.OutOrStdout()

	if watchWarmup > 0 {
		if err := warmUp(ctx, log, a, tracker, symbol, interval); err != nil {
			return err
		}
	}

	bars := make(chan core.Bar)
	errc := make(chan error, 1)
	go func() {
		errc <- feed.NewBinance(cfg.Feed, log).Klines(ctx, symbol, interval, bars)
	}()

	fmt.Fprintf(out, "watching %s %s with %s\n", symbol, interval, strat.Name())
	for {
		select {
		case bar := <-bars:
			// the stream can replay the last warm-up kline
			if !bar.Time.After(tracker.Last()) {
				continue
			}
			upd, err := tracker.Push(bar)
			if err != nil {
				return err
			}
			printUpdate(out, upd)
		case err := <-errc:
			printFinal(out, tracker)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// warmUp replays recent history so indicators are ready when live bars arrive
func warmUp(ctx context.Context, log *zap.Logger, a *app.App, tracker *backtest.Tracker, symbol, interval string) error {
	c, err := a.Collectors().MustGet("binance")
	if err != nil {
		return err
	}
	step, err := intervalDuration(interval)
	if err != nil {
		return err
	}

	end := time.Now().UTC()
	// the newest kline is still open
	end = end.Truncate(step).Add(-time.Millisecond)
	history, err := c.FetchHistory(ctx, symbol, end.Add(-time.Duration(watchWarmup)*step), end, interval)
	if err != nil {
		return fmt.Errorf("warm-up: %w", err)
	}
	for _, bar := range history {
		if _, err := tracker.Push(bar); err != nil {
			return fmt.Errorf("warm-up: %w", err)
		}
	}
	log.Info("warm-up complete", zap.Int("bars", len(history)))
	return nil
}

func intervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1d":
		return 24 * time.Hour, nil
	case "3d":
		return 72 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("unsupported warm-up interval %q", interval)
	}
	return d, nil
}

func printUpdate(w io.Writer, u backtest.Update) {
	for _, t := range u.Closed {
		fmt.Fprintf(w, "%s CLOSE %s %s entry=%g exit=%g by=%s result=%g\n",
			u.Bar.Time.Format(time.RFC3339), t.Symbol, t.Side, t.Entry, t.ExitPrice, t.ClosedBy, t.Result)
	}
	if s := u.Signal; s != nil {
		fmt.Fprintf(w, "%s OPEN  %s %s entry=%g tp=%g sl=%g\n",
			s.Time.Format(time.RFC3339), s.Symbol, s.Side, s.Entry, s.TakeProfit, s.StopLoss)
	}
}

func printFinal(w io.Writer, t *backtest.Tracker) {
	s := t.Stats()
	fmt.Fprintf(w, "\nclosed=%d open=%d win%%=%.1f pnl=%.4f pf=%s pass=%s\n",
		s.ClosedTrades, s.OpenTrades, s.WinRate*100, s.TotalPnL, formatPF(s.ProfitFactor), passMark(s.MeetsCriteria))
}
