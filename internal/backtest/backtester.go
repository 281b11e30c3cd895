package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
	"github.com/newthinker/tpsl/internal/strategy"
)

// BarProvider defines the interface for fetching historical bars
type BarProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}

// Recorder receives backtest metrics. *metrics.Registry implements it.
type Recorder interface {
	RecordSignal(strategy, side string)
	RecordTrade(strategy, closedBy string)
	RecordBacktest(status string, duration float64)
	SetOpenTrades(strategy string, count int)
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider   BarProvider
	logger     *zap.Logger
	metrics    Recorder
	sim        *Simulator
	tieBreak   TieBreak
	workers    int
	thresholds Thresholds
}

// Option configures a Backtester
type Option func(*Backtester)

func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(b *Backtester) { b.metrics = r }
}

// WithWorkers bounds the per-signal simulation pool
func WithWorkers(n int) Option {
	return func(b *Backtester) { b.workers = n }
}

func WithTieBreak(tb TieBreak) Option {
	return func(b *Backtester) { b.tieBreak = tb }
}

func WithThresholds(th Thresholds) Option {
	return func(b *Backtester) { b.thresholds = th }
}

// New creates a new Backtester with the given bar provider. provider may be
// nil when only RunSeries is used.
func New(provider BarProvider, opts ...Option) *Backtester {
	b := &Backtester{
		provider:   provider,
		logger:     zap.NewNop(),
		tieBreak:   TieBreakTakeProfit,
		thresholds: DefaultThresholds(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sim = NewSimulator(b.tieBreak, b.workers)
	return b
}

// Run fetches bars for symbol and backtests the strategy over them
func (b *Backtester) Run(ctx context.Context, strat strategy.Strategy, symbol string, start, end time.Time, interval string) (*Result, error) {
	if b.provider == nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("no bar provider configured"))
	}

	begin := time.Now()
	bars, err := b.provider.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		b.record("error", begin)
		return nil, fmt.Errorf("fetching %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		b.record("error", begin)
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("%s %s between %s and %s",
			symbol, interval, start.Format(time.DateOnly), end.Format(time.DateOnly)))
	}

	res, err := b.run(ctx, strat, core.Series(bars))
	if err != nil {
		b.record("error", begin)
		return nil, err
	}
	res.Symbol = symbol
	res.Interval = interval
	res.StartDate = start
	res.EndDate = end

	b.record("success", begin)
	return res, nil
}

// RunSeries backtests the strategy over bars the caller already holds.
// Indicators the strategy needs are computed on a copy of the series.
func (b *Backtester) RunSeries(ctx context.Context, strat strategy.Strategy, series core.Series) (*Result, error) {
	begin := time.Now()
	res, err := b.run(ctx, strat, series)
	if err != nil {
		b.record("error", begin)
		return nil, err
	}
	b.record("success", begin)
	return res, nil
}

// RunBatch runs the strategy over each symbol in turn. The first error
// aborts the batch.
func (b *Backtester) RunBatch(ctx context.Context, strat strategy.Strategy, symbols []string, start, end time.Time, interval string) ([]*Result, error) {
	results := make([]*Result, 0, len(symbols))
	for _, symbol := range symbols {
		res, err := b.Run(ctx, strat, symbol, start, end, interval)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (b *Backtester) run(ctx context.Context, strat strategy.Strategy, series core.Series) (*Result, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}

	annotated, err := indicator.Annotate(series, strat.Indicators()...)
	if err != nil {
		return nil, err
	}

	params := strat.Params()
	signals, err := generate(annotated, strat, params, b.logger)
	if err != nil {
		return nil, err
	}

	resolutions, err := b.sim.SimulateAll(ctx, annotated, signals)
	if err != nil {
		return nil, err
	}
	trades, open := Split(resolutions)

	stats := Aggregate(trades, b.thresholds)
	stats.OpenTrades = len(open)

	b.observe(strat.Name(), signals, trades, open)

	res := &Result{
		Strategy: strat.Name(),
		Params:   params,
		TieBreak: b.tieBreak,
		Bars:     len(series),
		Signals:  signals,
		Trades:   trades,
		Open:     open,
		Stats:    stats,
	}
	if len(series) > 0 {
		first := series[0]
		res.Symbol = first.Symbol
		res.Interval = first.Interval
		res.StartDate = first.Time
		res.EndDate = series[len(series)-1].Time
	}

	b.logger.Info("backtest complete",
		zap.String("strategy", res.Strategy),
		zap.String("symbol", res.Symbol),
		zap.Int("bars", res.Bars),
		zap.Int("signals", len(signals)),
		zap.Int("trades", len(trades)),
		zap.Int("open", len(open)),
		zap.Float64("total_pnl", stats.TotalPnL),
		zap.Bool("meets_criteria", stats.MeetsCriteria),
	)
	return res, nil
}

func (b *Backtester) observe(name string, signals []OpenSignal, trades []ClosedTrade, open []OpenSignal) {
	if b.metrics == nil {
		return
	}
	for _, s := range signals {
		b.metrics.RecordSignal(name, string(s.Side))
	}
	for _, t := range trades {
		b.metrics.RecordTrade(name, string(t.ClosedBy))
	}
	b.metrics.SetOpenTrades(name, len(open))
}

func (b *Backtester) record(status string, begin time.Time) {
	if b.metrics != nil {
		b.metrics.RecordBacktest(status, time.Since(begin).Seconds())
	}
}
