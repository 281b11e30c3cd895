package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/api"
	"github.com/newthinker/tpsl/internal/app"
)

var (
	serveSource    string
	serveScanEvery time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TPSL HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSource, "source", "", "collector for API backtests (default: backtest.source)")
	serveCmd.Flags().DurationVar(&serveScanEvery, "scan-every", 0, "also backtest all strategies over backtest.symbols on this interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	bt, err := a.Backtester(serveSource)
	if err != nil {
		return err
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	server, err := api.NewServer(api.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		APIKey:          cfg.Server.APIKey,
		MetricsPath:     metricsPath,
		JobTTL:          time.Duration(cfg.Server.JobTTLHours) * time.Hour,
		MaxJobs:         cfg.Server.MaxJobs,
		Interval:        cfg.Backtest.Interval,
		BacktestTimeout: cfg.Backtest.Timeout,
	}, api.Dependencies{
		Backtester: bt,
		Strategies: a.Strategies(),
		Reports:    a.Reports(),
		Metrics:    a.Metrics(),
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("starting TPSL server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("strategies", a.Strategies().Names()),
	)

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	if serveScanEvery > 0 {
		go func() {
			if err := a.Start(ctx, serveScanEvery); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("scheduler stopped", zap.Error(err))
			}
		}()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down TPSL server")
	a.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
