package backtest

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/newthinker/tpsl/internal/core"
)

// Simulator resolves signals against a read-only bar series
type Simulator struct {
	tieBreak TieBreak
	workers  int
}

// NewSimulator creates a simulator. workers <= 0 uses GOMAXPROCS.
func NewSimulator(tieBreak TieBreak, workers int) *Simulator {
	if tieBreak == "" {
		tieBreak = TieBreakTakeProfit
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{tieBreak: tieBreak, workers: workers}
}

var defaultSimulator = NewSimulator(TieBreakTakeProfit, 1)

// Resolve simulates one signal with the take-profit-first tie-break
func Resolve(series core.Series, sig OpenSignal) (Resolution, error) {
	return defaultSimulator.Resolve(series, sig)
}

// Resolve scans forward from the signal's anchor bar, inclusive, and stops
// at the first bar that touches TP or SL.
func (s *Simulator) Resolve(series core.Series, sig OpenSignal) (Resolution, error) {
	res, _, err := s.ResolveFrom(series, sig, 0)
	return res, err
}

// ResolveFrom scans from max(anchor, from). It returns the resolution and
// the index the next call should resume from, so callers appending bars to
// the series only pay for the bars they add.
func (s *Simulator) ResolveFrom(series core.Series, sig OpenSignal, from int) (Resolution, int, error) {
	anchor, ok := series.IndexOf(sig.Time)
	if !ok {
		return Resolution{}, from, core.WrapError(core.ErrSignalAnchorNotFound,
			fmt.Errorf("%s %s signal at %s", sig.Symbol, sig.Side, sig.Time.Format(time.RFC3339)))
	}
	if from < anchor {
		from = anchor
	}

	for i := from; i < len(series); i++ {
		if trade, hit := s.exit(sig, series[i]); hit {
			return Closed(trade), i + 1, nil
		}
	}
	return StillOpen(sig), max(from, len(series)), nil
}

// exit checks one bar against the signal's levels
func (s *Simulator) exit(sig OpenSignal, bar core.Bar) (ClosedTrade, bool) {
	var tpHit, slHit bool
	if sig.Side == core.SideBuy {
		tpHit = bar.High >= sig.TakeProfit
		slHit = bar.Low <= sig.StopLoss
	} else {
		tpHit = bar.Low <= sig.TakeProfit
		slHit = bar.High >= sig.StopLoss
	}

	var by ClosedBy
	switch {
	case tpHit && (!slHit || s.tieBreak == TieBreakTakeProfit):
		by = ClosedByTP
	case slHit:
		by = ClosedBySL
	default:
		return ClosedTrade{}, false
	}

	exitPrice := sig.StopLoss
	if by == ClosedByTP {
		exitPrice = sig.TakeProfit
	}
	result := exitPrice - sig.Entry
	if sig.Side == core.SideSell {
		result = sig.Entry - exitPrice
	}

	return ClosedTrade{
		OpenSignal: sig,
		ClosedBy:   by,
		ExitTime:   bar.Time,
		ExitPrice:  exitPrice,
		Result:     result,
	}, true
}

// SimulateAll resolves every signal on a bounded worker pool. Results keep
// signal order. The first structural error cancels the batch.
func (s *Simulator) SimulateAll(ctx context.Context, series core.Series, signals []OpenSignal) ([]Resolution, error) {
	results := make([]Resolution, len(signals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, sig := range signals {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := s.Resolve(series, sig)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Split separates resolutions into closed trades and still-open signals
func Split(resolutions []Resolution) ([]ClosedTrade, []OpenSignal) {
	trades := make([]ClosedTrade, 0, len(resolutions))
	var open []OpenSignal
	for _, r := range resolutions {
		if t, ok := r.Trade(); ok {
			trades = append(trades, t)
		} else {
			open = append(open, r.Signal())
		}
	}
	return trades, open
}
