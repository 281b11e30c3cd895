package backtest

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
	"github.com/newthinker/tpsl/internal/strategy"
)

const minTrackerWindow = 200

// Update reports what a single pushed bar changed
type Update struct {
	Bar    core.Bar
	Signal *OpenSignal    // signal fired on this bar, if any
	Closed []ClosedTrade // trades closed by this bar
}

type cursor struct {
	sig  OpenSignal
	next int
}

// Tracker resolves signals incrementally as bars arrive. Each open signal
// remembers the next bar it has to check, so a push only scans the new bar.
type Tracker struct {
	mu         sync.Mutex
	strat      strategy.Strategy
	params     strategy.Params
	specs      []indicator.Spec
	window     int
	sim        *Simulator
	thresholds Thresholds
	logger     *zap.Logger
	metrics    Recorder

	series core.Series
	open   []cursor
	trades []ClosedTrade
}

// Track creates a Tracker for strat sharing this backtester's tie-break,
// thresholds, logger and metrics.
func (b *Backtester) Track(strat strategy.Strategy) *Tracker {
	specs := strat.Indicators()
	return &Tracker{
		strat:      strat,
		params:     strat.Params(),
		specs:      specs,
		window:     max(4*indicator.MaxPeriod(specs), minTrackerWindow),
		sim:        NewSimulator(b.tieBreak, 1),
		thresholds: b.thresholds,
		logger:     b.logger,
		metrics:    b.metrics,
	}
}

// Push appends a bar, resolves open signals against it and evaluates the
// strategy on it. Bars must arrive in strictly increasing time order.
func (t *Tracker) Push(bar core.Bar) (Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := bar.Validate(); err != nil {
		return Update{}, core.WrapError(core.ErrInvalidBarSeries, err)
	}
	if n := len(t.series); n > 0 && !bar.Time.After(t.series[n-1].Time) {
		return Update{}, core.WrapError(core.ErrInvalidBarSeries,
			fmt.Errorf("bar at %s not after %s", bar.Time.Format(time.RFC3339), t.series[n-1].Time.Format(time.RFC3339)))
	}

	annotated, err := t.annotate(bar)
	if err != nil {
		return Update{}, err
	}
	t.series = append(t.series, annotated)

	upd := Update{Bar: annotated}

	// resolve signals opened on earlier bars
	remaining := t.open[:0]
	for _, c := range t.open {
		res, next, err := t.sim.ResolveFrom(t.series, c.sig, c.next)
		if err != nil {
			return Update{}, err
		}
		if trade, ok := res.Trade(); ok {
			upd.Closed = append(upd.Closed, trade)
			continue
		}
		remaining = append(remaining, cursor{sig: c.sig, next: next})
	}
	t.open = remaining

	if sig, ok := signalAt(annotated, t.strat, t.params, t.logger); ok {
		upd.Signal = &sig
		t.record(sig)
		// the anchor bar itself may already hit a level
		res, next, err := t.sim.ResolveFrom(t.series, sig, len(t.series)-1)
		if err != nil {
			return Update{}, err
		}
		if trade, ok := res.Trade(); ok {
			upd.Closed = append(upd.Closed, trade)
		} else {
			t.open = append(t.open, cursor{sig: sig, next: next})
		}
	}

	t.trades = append(t.trades, upd.Closed...)
	if t.metrics != nil {
		for _, tr := range upd.Closed {
			t.metrics.RecordTrade(t.strat.Name(), string(tr.ClosedBy))
		}
		t.metrics.SetOpenTrades(t.strat.Name(), len(t.open))
	}
	t.trim()
	return upd, nil
}

// trim drops bars that neither the annotation window nor any open signal's
// anchor still needs, and rebases the cursors. It waits until at least a
// full window can go so the copy is amortised over many pushes.
func (t *Tracker) trim() {
	cut := len(t.series) - (t.window - 1)
	for _, c := range t.open {
		if anchor, ok := t.series.IndexOf(c.sig.Time); ok && anchor < cut {
			cut = anchor
		}
	}
	if cut < t.window {
		return
	}

	t.series = append(make(core.Series, 0, len(t.series)-cut+t.window), t.series[cut:]...)
	for i := range t.open {
		t.open[i].next -= cut
	}
}

// annotate computes indicators for bar over the trailing window
func (t *Tracker) annotate(bar core.Bar) (core.Bar, error) {
	start := max(0, len(t.series)-t.window+1)
	tail := make(core.Series, 0, len(t.series)-start+1)
	tail = append(tail, t.series[start:]...)
	tail = append(tail, bar)

	annotated, err := indicator.Annotate(tail, t.specs...)
	if err != nil {
		return core.Bar{}, err
	}
	return annotated[len(annotated)-1], nil
}

func (t *Tracker) record(sig OpenSignal) {
	t.logger.Info("signal opened",
		zap.String("strategy", sig.Strategy),
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Float64("entry", sig.Entry),
		zap.Float64("take_profit", sig.TakeProfit),
		zap.Float64("stop_loss", sig.StopLoss),
	)
	if t.metrics != nil {
		t.metrics.RecordSignal(sig.Strategy, string(sig.Side))
	}
}

// Open returns the signals still waiting for an exit
func (t *Tracker) Open() []OpenSignal {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]OpenSignal, len(t.open))
	for i, c := range t.open {
		out[i] = c.sig
	}
	return out
}

// Trades returns all trades closed so far
func (t *Tracker) Trades() []ClosedTrade {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ClosedTrade(nil), t.trades...)
}

// Stats aggregates the trades closed so far
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Aggregate(t.trades, t.thresholds)
	stats.OpenTrades = len(t.open)
	return stats
}

// Last returns the open time of the newest bar, zero before the first push
func (t *Tracker) Last() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.series) == 0 {
		return time.Time{}
	}
	return t.series[len(t.series)-1].Time
}
