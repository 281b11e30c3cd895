package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/collector"
	"github.com/newthinker/tpsl/internal/collector/binance"
	"github.com/newthinker/tpsl/internal/collector/okx"
	"github.com/newthinker/tpsl/internal/collector/timescale"
	"github.com/newthinker/tpsl/internal/config"
	"github.com/newthinker/tpsl/internal/metrics"
	"github.com/newthinker/tpsl/internal/notifier"
	"github.com/newthinker/tpsl/internal/notifier/telegram"
	"github.com/newthinker/tpsl/internal/notifier/webhook"
	"github.com/newthinker/tpsl/internal/router"
	"github.com/newthinker/tpsl/internal/storage/archive"
	"github.com/newthinker/tpsl/internal/strategy"
	"github.com/newthinker/tpsl/internal/strategy/cci_adx"
	"github.com/newthinker/tpsl/internal/strategy/confluence"
	"github.com/newthinker/tpsl/internal/strategy/ma_trend"
)

// App wires configuration into collectors, strategies, metrics, notifiers
// and the report archive, and runs scheduled backtest cycles
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	collectors *collector.Registry
	strategies *strategy.Registry
	metrics    *metrics.Registry
	reports    *archive.ReportStore
	notifiers  *notifier.Registry
	router     *router.Router
	closers    []io.Closer

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	cycles  int
}

// New builds an App from cfg. Built-in strategies are registered and then
// configured, so disabled ones are dropped.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		collectors: collector.NewRegistry(),
		strategies: strategy.NewRegistry(logger),
		notifiers:  notifier.NewRegistry(),
	}
	a.router = router.New(router.Config{
		OnlyPassing: cfg.Router.OnlyPassing,
		MinTrades:   cfg.Router.MinTrades,
		Cooldown:    cfg.Router.Cooldown,
	}, a.notifiers, logger)

	a.strategies.Register(cci_adx.New())
	a.strategies.Register(confluence.New())
	a.strategies.Register(ma_trend.New(10, 30))
	a.strategies.Configure(cfg.StrategyConfigs())

	if cfg.Collectors.Binance.Enabled {
		a.collectors.Register(binance.NewWithBaseURL(cfg.Collectors.Binance.BaseURL, logger))
	}
	if cfg.Collectors.OKX.Enabled {
		a.collectors.Register(okx.NewWithBaseURL(cfg.Collectors.OKX.BaseURL, logger))
	}
	if cfg.Collectors.Timescale.Enabled {
		ts, err := timescale.New(ctx, cfg.Collectors.Timescale.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("timescale collector: %w", err)
		}
		a.collectors.Register(ts)
		a.closers = append(a.closers, ts)
	}

	if err := a.registerNotifiers(); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	if cfg.Archive.Enabled {
		st, err := archive.Open(cfg.Archive, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		a.reports = archive.NewReportStore(st, logger)
	}

	logger.Info("application initialized",
		zap.Strings("strategies", a.strategies.Names()),
		zap.Int("collectors", len(a.collectors.GetAll())),
		zap.Bool("metrics", a.metrics != nil),
		zap.Bool("archive", a.reports != nil),
		zap.Int("notifiers", a.notifiers.Len()),
	)
	return a, nil
}

func (a *App) registerNotifiers() error {
	for name, nc := range a.cfg.Notifiers {
		if !nc.Enabled {
			continue
		}

		var n notifier.Notifier
		params := map[string]any{}
		switch name {
		case "telegram":
			n = telegram.New(nc.BotToken, nc.ChatID)
			params["api_url"] = nc.APIURL
		case "webhook":
			n = webhook.New(nc.URL, nc.Headers)
		default:
			a.logger.Warn("unknown notifier skipped", zap.String("notifier", name))
			continue
		}

		if err := n.Init(notifier.Config{Type: name, Params: params}); err != nil {
			return fmt.Errorf("notifier %s: %w", name, err)
		}
		if err := a.notifiers.Register(n); err != nil {
			return err
		}
	}
	return nil
}

// RegisterNotifier adds a notifier that receives scheduled cycle results
func (a *App) RegisterNotifier(n notifier.Notifier) error {
	return a.notifiers.Register(n)
}

func (a *App) Config() *config.Config          { return a.cfg }
func (a *App) Strategies() *strategy.Registry  { return a.strategies }
func (a *App) Collectors() *collector.Registry { return a.collectors }
func (a *App) Reports() *archive.ReportStore   { return a.reports }
func (a *App) Metrics() *metrics.Registry      { return a.metrics }

// RegisterCollector adds or replaces a bar source
func (a *App) RegisterCollector(c collector.Collector) {
	a.collectors.Register(c)
}

// Backtester returns a backtester reading bars from the named collector.
// An empty source selects backtest.source from the config.
func (a *App) Backtester(source string) (*backtest.Backtester, error) {
	if source == "" {
		source = a.cfg.Backtest.Source
	}
	c, err := a.collectors.MustGet(source)
	if err != nil {
		return nil, err
	}

	tb, err := backtest.ParseTieBreak(a.cfg.Backtest.TieBreak)
	if err != nil {
		return nil, err
	}

	th := a.cfg.Backtest.Thresholds
	opts := []backtest.Option{
		backtest.WithLogger(a.logger),
		backtest.WithWorkers(a.cfg.Backtest.Workers),
		backtest.WithTieBreak(tb),
		backtest.WithThresholds(backtest.Thresholds{
			PnL:          th.PnL,
			WinRate:      th.WinRate,
			ProfitFactor: th.ProfitFactor,
		}),
	}
	if a.metrics != nil {
		opts = append(opts, backtest.WithMetrics(a.metrics))
	}
	return backtest.New(c, opts...), nil
}

// RunCycle backtests every registered strategy over the configured symbols
// for the lookback window ending at end. Failures are logged and joined; the
// successful results are still returned and archived.
func (a *App) RunCycle(ctx context.Context, end time.Time) ([]*backtest.Result, error) {
	bt, err := a.Backtester("")
	if err != nil {
		return nil, err
	}

	start := end.Add(-a.cfg.Backtest.Lookback)
	var (
		results []*backtest.Result
		errs    []error
	)

	for _, strat := range a.strategies.GetAll() {
		for _, symbol := range a.cfg.Backtest.Symbols {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}

			res, err := bt.Run(ctx, strat, symbol, start, end, a.cfg.Backtest.Interval)
			if err != nil {
				a.logger.Warn("cycle backtest failed",
					zap.String("strategy", strat.Name()),
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s/%s: %w", strat.Name(), symbol, err))
				continue
			}

			if a.reports != nil {
				if _, err := a.reports.Save(ctx, res); err != nil {
					errs = append(errs, err)
				}
			}
			results = append(results, res)
		}
	}

	a.mu.Lock()
	a.cycles++
	a.mu.Unlock()

	return results, errors.Join(errs...)
}

// Start runs a cycle immediately and then every interval until ctx is done
// or Stop is called
func (a *App) Start(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %v", every)
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.logger.Info("backtest scheduler starting",
		zap.Strings("symbols", a.cfg.Backtest.Symbols),
		zap.Duration("every", every),
	)

	a.router.StartCleanupRoutine(ctx, every)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		a.runScheduled(ctx)
		select {
		case <-ctx.Done():
			a.logger.Info("backtest scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *App) runScheduled(ctx context.Context) {
	results, err := a.RunCycle(ctx, time.Now().UTC())
	if err != nil && ctx.Err() == nil {
		a.logger.Warn("backtest cycle finished with errors", zap.Error(err))
	}

	passing := 0
	for _, r := range results {
		if r.Stats.MeetsCriteria {
			passing++
		}
	}
	notified := a.router.RouteBatch(ctx, results)

	a.logger.Info("backtest cycle complete",
		zap.Int("results", len(results)),
		zap.Int("meets_criteria", passing),
		zap.Int("notified", notified),
	)
}

// Stop cancels a running Start loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases collector connections
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]any{
		"running":    a.running,
		"cycles":     a.cycles,
		"symbols":    len(a.cfg.Backtest.Symbols),
		"collectors": len(a.collectors.GetAll()),
		"strategies": len(a.strategies.GetAll()),
		"archive":    a.reports != nil,
		"notifiers":  a.notifiers.Len(),
	}
}
