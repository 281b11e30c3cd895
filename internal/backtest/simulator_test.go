package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newthinker/tpsl/internal/core"
)

func buySignal(series core.Series, i int, entry, tp, sl float64) OpenSignal {
	return OpenSignal{Time: series[i].Time, Symbol: "BTCUSDT", Side: core.SideBuy, Quantity: 1, Entry: entry, TakeProfit: tp, StopLoss: sl}
}

func sellSignal(series core.Series, i int, entry, tp, sl float64) OpenSignal {
	return OpenSignal{Time: series[i].Time, Symbol: "BTCUSDT", Side: core.SideSell, Quantity: 1, Entry: entry, TakeProfit: tp, StopLoss: sl}
}

func TestResolve_WinningBuy(t *testing.T) {
	series := core.Series{
		mkBar(0, 100, 101, 99.5, 100, 1),
		mkBar(1, 100, 115, 100, 112, 0),
		mkBar(2, 112, 113, 111, 112, 0),
	}
	signals, err := Generate(series, &signalStrategy{}, wideParams)
	if err != nil || len(signals) != 1 {
		t.Fatalf("Generate() = %v, %v", signals, err)
	}

	res, err := Resolve(series, signals[0])
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	trade, ok := res.Trade()
	if !ok {
		t.Fatal("expected trade to close")
	}
	if trade.ClosedBy != ClosedByTP {
		t.Errorf("ClosedBy = %v, want TP", trade.ClosedBy)
	}
	if trade.Result != 10 {
		t.Errorf("Result = %v, want 10", trade.Result)
	}
	if !trade.ExitTime.Equal(series[1].Time) || trade.ExitPrice != 110 {
		t.Errorf("exit = %v @ %v, want bar 1 @ 110", trade.ExitTime, trade.ExitPrice)
	}
}

func TestResolve_LosingSell(t *testing.T) {
	series := core.Series{
		mkBar(0, 100, 100.5, 99.5, 100, -1),
		mkBar(1, 100, 103, 99, 101, 0),
	}
	signals, err := Generate(series, &signalStrategy{}, wideParams)
	if err != nil || len(signals) != 1 {
		t.Fatalf("Generate() = %v, %v", signals, err)
	}
	if signals[0].TakeProfit != 90 || signals[0].StopLoss != 102 {
		t.Fatalf("levels = %+v, want tp 90 sl 102", signals[0])
	}

	res, err := Resolve(series, signals[0])
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	trade, ok := res.Trade()
	if !ok {
		t.Fatal("expected trade to close")
	}
	if trade.ClosedBy != ClosedBySL || trade.Result != -2 {
		t.Errorf("trade = %v %v, want SL -2", trade.ClosedBy, trade.Result)
	}
}

func TestResolve_UnresolvedAtLastBar(t *testing.T) {
	series := core.Series{
		mkBar(0, 100, 101, 99, 100, 0),
		mkBar(1, 100, 101, 99, 100, 1),
	}
	sig := buySignal(series, 1, 100, 110, 98)

	res, err := Resolve(series, sig)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.IsClosed() {
		t.Error("signal on the last bar with untouched levels should stay open")
	}
	if res.Signal() != sig {
		t.Errorf("open signal = %+v, want %+v", res.Signal(), sig)
	}

	trades, open := Split([]Resolution{res})
	if len(trades) != 0 || len(open) != 1 {
		t.Errorf("Split() = %d trades, %d open", len(trades), len(open))
	}
	if stats := Aggregate(trades, DefaultThresholds()); stats.ClosedTrades != 0 {
		t.Errorf("open signals must not reach the aggregator, got %+v", stats)
	}
}

func TestResolve_AnchorBarCanClose(t *testing.T) {
	series := core.Series{mkBar(0, 100, 120, 99, 100, 0)}

	res, err := Resolve(series, buySignal(series, 0, 100, 110, 98))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if trade, ok := res.Trade(); !ok || trade.ClosedBy != ClosedByTP {
		t.Errorf("expected TP on the anchor bar, got %+v", res)
	}
}

func TestResolve_TieBreak(t *testing.T) {
	// one bar spans both levels
	series := core.Series{
		mkBar(0, 100, 100, 100, 100, 0),
		mkBar(1, 100, 120, 80, 100, 0),
	}
	buy := buySignal(series, 0, 100, 110, 98)
	sell := sellSignal(series, 0, 100, 90, 102)

	tests := []struct {
		name     string
		tieBreak TieBreak
		sig      OpenSignal
		want     ClosedBy
		result   float64
	}{
		{"buy tp first", TieBreakTakeProfit, buy, ClosedByTP, 10},
		{"sell tp first", TieBreakTakeProfit, sell, ClosedByTP, 10},
		{"buy sl first", TieBreakStopLoss, buy, ClosedBySL, -2},
		{"sell sl first", TieBreakStopLoss, sell, ClosedBySL, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewSimulator(tt.tieBreak, 1).Resolve(series, tt.sig)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			trade, ok := res.Trade()
			if !ok {
				t.Fatal("expected trade to close")
			}
			if trade.ClosedBy != tt.want || trade.Result != tt.result {
				t.Errorf("got %v %v, want %v %v", trade.ClosedBy, trade.Result, tt.want, tt.result)
			}
		})
	}
}

func TestResolve_FirstHitWins(t *testing.T) {
	series := core.Series{
		mkBar(0, 100, 100, 100, 100, 0),
		mkBar(1, 100, 100, 97, 97, 0),  // SL
		mkBar(2, 97, 130, 97, 120, 0), // TP after the fact
	}

	res, err := Resolve(series, buySignal(series, 0, 100, 110, 98))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	trade, _ := res.Trade()
	if trade.ClosedBy != ClosedBySL || !trade.ExitTime.Equal(series[1].Time) {
		t.Errorf("expected SL on bar 1, got %v at %v", trade.ClosedBy, trade.ExitTime)
	}
}

func TestResolve_AnchorNotFound(t *testing.T) {
	series := core.Series{mkBar(0, 100, 101, 99, 100, 0)}
	sig := OpenSignal{Time: baseTime.Add(time.Hour), Side: core.SideBuy, Entry: 100, TakeProfit: 110, StopLoss: 98}

	_, err := Resolve(series, sig)
	if !errors.Is(err, core.ErrSignalAnchorNotFound) {
		t.Errorf("error = %v, want ErrSignalAnchorNotFound", err)
	}
}

func TestResolveFrom_MonotonicScan(t *testing.T) {
	series := make(core.Series, 0, 6)
	for i := 0; i < 6; i++ {
		series = append(series, mkBar(i, 100, 101, 99, 100, 0))
	}
	series[5].High = 111
	sig := buySignal(series, 1, 100, 110, 98)
	sim := NewSimulator(TieBreakTakeProfit, 1)

	// scanning through bar 4 leaves the trade open
	res, next, err := sim.ResolveFrom(series[:5], sig, 0)
	if err != nil {
		t.Fatalf("ResolveFrom() error = %v", err)
	}
	if res.IsClosed() {
		t.Fatal("trade closed early")
	}
	if next != 5 {
		t.Errorf("next = %d, want 5", next)
	}

	// resuming picks up exactly bar 5
	res, next, err = sim.ResolveFrom(series, sig, next)
	if err != nil {
		t.Fatalf("ResolveFrom() error = %v", err)
	}
	trade, ok := res.Trade()
	if !ok || !trade.ExitTime.Equal(series[5].Time) {
		t.Errorf("expected close on bar 5, got %+v", res)
	}
	if next != 6 {
		t.Errorf("next = %d, want 6", next)
	}
}

func TestSimulateAll(t *testing.T) {
	series := core.Series{
		mkBar(0, 100, 100, 100, 100, 0),
		mkBar(1, 100, 100, 100, 100, 0),
		mkBar(2, 100, 111, 97, 100, 0),
		mkBar(3, 100, 100, 100, 100, 0),
	}
	signals := []OpenSignal{
		buySignal(series, 0, 100, 110, 98),
		sellSignal(series, 1, 100, 90, 102),
		buySignal(series, 3, 100, 110, 98),
	}

	results, err := NewSimulator(TieBreakTakeProfit, 2).SimulateAll(context.Background(), series, signals)
	if err != nil {
		t.Fatalf("SimulateAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Signal() != signals[i] {
			t.Errorf("result %d out of order", i)
		}
	}
	if tr, _ := results[0].Trade(); tr.ClosedBy != ClosedByTP {
		t.Errorf("buy should hit TP, got %v", tr.ClosedBy)
	}
	if tr, _ := results[1].Trade(); tr.ClosedBy != ClosedBySL {
		t.Errorf("sell should hit SL at high 111, got %v", tr.ClosedBy)
	}
	if results[2].IsClosed() {
		t.Error("last signal should stay open")
	}
}

func TestSimulateAll_AbortsOnStructuralError(t *testing.T) {
	series := core.Series{mkBar(0, 100, 101, 99, 100, 0)}
	signals := []OpenSignal{
		buySignal(series, 0, 100, 110, 98),
		{Time: baseTime.Add(time.Hour), Side: core.SideBuy},
	}

	results, err := NewSimulator("", 4).SimulateAll(context.Background(), series, signals)
	if !errors.Is(err, core.ErrSignalAnchorNotFound) {
		t.Errorf("error = %v, want ErrSignalAnchorNotFound", err)
	}
	if results != nil {
		t.Error("expected no partial results")
	}
}

func TestSimulateAll_Cancelled(t *testing.T) {
	series := core.Series{mkBar(0, 100, 101, 99, 100, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator("", 1).SimulateAll(ctx, series, []OpenSignal{buySignal(series, 0, 100, 110, 98)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
