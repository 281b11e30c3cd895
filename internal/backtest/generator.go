package backtest

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/strategy"
)

// Generate scans the series once and emits a signal for every bar on which
// the strategy's buy or sell predicate fires. Buy is evaluated first and wins
// if both fire. Only the current bar is consulted. A malformed series fails
// with ErrInvalidBarSeries.
func Generate(series core.Series, strat strategy.Strategy, params strategy.Params) ([]OpenSignal, error) {
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return generate(series, strat, params, zap.NewNop())
}

func generate(series core.Series, strat strategy.Strategy, params strategy.Params, log *zap.Logger) ([]OpenSignal, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var signals []OpenSignal
	for _, bar := range series {
		if sig, ok := signalAt(bar, strat, params, log); ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

// signalAt evaluates the strategy on a single bar
func signalAt(bar core.Bar, strat strategy.Strategy, params strategy.Params, log *zap.Logger) (OpenSignal, bool) {
	var side core.Side
	switch {
	case strat.Buy(bar):
		side = core.SideBuy
	case strat.Sell(bar):
		side = core.SideSell
	default:
		return OpenSignal{}, false
	}

	sig := newSignal(bar, strat.Name(), side, params)
	if !levelsValid(sig) {
		log.Debug("skipping signal with degenerate levels",
			zap.String("symbol", sig.Symbol),
			zap.Time("time", sig.Time),
			zap.String("side", string(side)),
			zap.Float64("entry", sig.Entry),
			zap.Float64("take_profit", sig.TakeProfit),
			zap.Float64("stop_loss", sig.StopLoss),
		)
		return OpenSignal{}, false
	}
	return sig, true
}

func newSignal(bar core.Bar, name string, side core.Side, params strategy.Params) OpenSignal {
	entry := bar.Close
	var tp, sl float64
	if side == core.SideBuy {
		sl = entry * (1 - params.SLPct)
		tp = entry * (1 + params.TPPct)
	} else {
		sl = entry * (1 + params.SLPct)
		tp = entry * (1 - params.TPPct)
	}

	return OpenSignal{
		Time:       bar.Time,
		Symbol:     bar.Symbol,
		Strategy:   name,
		Side:       side,
		Quantity:   params.Quantity,
		Entry:      entry,
		TakeProfit: roundPrice(tp, params.Precision),
		StopLoss:   roundPrice(sl, params.Precision),
	}
}

// roundPrice rounds half away from zero to the given number of decimals.
// Non-finite values are returned unchanged.
func roundPrice(v float64, precision int) float64 {
	if !isFinite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(int32(precision)).InexactFloat64()
}

// levelsValid checks SL < entry < TP for buys and TP < entry < SL for sells.
// Coarse precision on small prices can collapse a level onto the entry, and
// prices near the float64 limit can overflow a level to infinity.
func levelsValid(s OpenSignal) bool {
	if !isFinite(s.Entry) || !isFinite(s.TakeProfit) || !isFinite(s.StopLoss) {
		return false
	}
	if s.Side == core.SideBuy {
		return s.StopLoss < s.Entry && s.Entry < s.TakeProfit
	}
	return s.TakeProfit < s.Entry && s.Entry < s.StopLoss
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
