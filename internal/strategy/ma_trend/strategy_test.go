package ma_trend

import (
	"errors"
	"math"
	"testing"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/strategy"
)

func TestMATrend_ImplementsStrategy(t *testing.T) {
	var _ strategy.Strategy = (*MATrend)(nil)
}

func TestMATrend_Name(t *testing.T) {
	s := New(5, 10)
	if s.Name() != "ma_trend" {
		t.Errorf("expected 'ma_trend', got '%s'", s.Name())
	}
	if s.Description() != "MA Trend (5/10)" {
		t.Errorf("unexpected description %q", s.Description())
	}
}

func bar(close, fast, slow float64) core.Bar {
	return core.Bar{Close: close, Indicators: map[string]float64{indFast: fast, indSlow: slow}}
}

func TestMATrend_Predicates(t *testing.T) {
	s := New(2, 4)

	tests := []struct {
		name      string
		bar       core.Bar
		buy, sell bool
	}{
		{"uptrend above fast", bar(105, 102, 100), true, false},
		{"uptrend pullback", bar(101, 102, 100), false, false},
		{"downtrend below fast", bar(95, 98, 100), false, true},
		{"downtrend bounce", bar(99, 98, 100), false, false},
		{"warm up", bar(105, math.NaN(), 100), false, false},
		{"flat", bar(100, 100, 100), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Buy(tt.bar); got != tt.buy {
				t.Errorf("Buy() = %v, want %v", got, tt.buy)
			}
			if got := s.Sell(tt.bar); got != tt.sell {
				t.Errorf("Sell() = %v, want %v", got, tt.sell)
			}
		})
	}
}

func TestMATrend_Init(t *testing.T) {
	s := New(5, 10)
	err := s.Init(strategy.Config{Params: map[string]any{"fast_period": 8, "slow_period": 21}, TPPct: 0.03})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	specs := s.Indicators()
	if specs[0].Period != 8 || specs[1].Period != 21 {
		t.Errorf("unexpected periods %+v", specs)
	}
	if s.Params().TPPct != 0.03 || s.Params().SLPct != 0.01 {
		t.Errorf("unexpected params %+v", s.Params())
	}

	bad := New(5, 10)
	err = bad.Init(strategy.Config{Params: map[string]any{"fast_period": 30}})
	if !errors.Is(err, core.ErrStrategyInvalid) {
		t.Errorf("expected ErrStrategyInvalid, got %v", err)
	}
	if bad.Indicators()[0].Period != 5 {
		t.Error("failed Init should leave periods unchanged")
	}
}
