package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/tpsl/internal/backtest"
	"github.com/newthinker/tpsl/internal/core"
)

func sampleResult() *backtest.Result {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sig := backtest.OpenSignal{
		Time: t0, Symbol: "BTCUSDT", Strategy: "cci_adx", Side: core.SideBuy,
		Quantity: 100, Entry: 100, TakeProfit: 101.5, StopLoss: 99,
	}
	return &backtest.Result{
		Strategy: "cci_adx",
		Symbol:   "BTCUSDT",
		Bars:     60,
		Signals:  []backtest.OpenSignal{sig, sig},
		Trades: []backtest.ClosedTrade{{
			OpenSignal: sig, ClosedBy: backtest.ClosedByTP,
			ExitTime: t0.Add(time.Minute), ExitPrice: 101.5, Result: 1.5,
		}},
		Open: []backtest.OpenSignal{sig},
		Stats: backtest.Stats{
			ClosedTrades: 1, OpenTrades: 1, WinningTrades: 1,
			TotalPnL: 1.5, GrossProfit: 1.5, WinRate: 1,
			ProfitFactor: math.Inf(1), MeetsCriteria: true,
		},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := printSummary(&buf, []*backtest.Result{sampleResult()}); err != nil {
		t.Fatalf("printSummary() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	fields := strings.Fields(lines[1])
	want := []string{"cci_adx", "BTCUSDT", "60", "2", "1", "1", "100.0", "1.5000", "inf", "0.0000", "yes"}
	if strings.Join(fields, " ") != strings.Join(want, " ") {
		t.Errorf("row = %v, want %v", fields, want)
	}
}

func TestPrintTrades(t *testing.T) {
	var buf bytes.Buffer
	if err := printTrades(&buf, sampleResult()); err != nil {
		t.Fatalf("printTrades() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "TP") || !strings.Contains(out, "open") {
		t.Errorf("expected closed and open rows, got %q", out)
	}
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-02-03")
	if err != nil || !got.Equal(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseDate() = %v, %v", got, err)
	}
	if _, err := parseDate("03/02/2024"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"1m", time.Minute, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1M", 0, false},
	}
	for _, tt := range tests {
		got, err := intervalDuration(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("intervalDuration(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "TPSL dev") {
		t.Errorf("unexpected version output %q", buf.String())
	}
}
