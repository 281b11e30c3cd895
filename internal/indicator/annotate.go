package indicator

import (
	"fmt"

	"github.com/newthinker/tpsl/internal/core"
)

// Kind identifies an indicator calculation
type Kind string

const (
	KindSMA  Kind = "sma"
	KindEMA  Kind = "ema"
	KindRSI  Kind = "rsi"
	KindCCI  Kind = "cci"
	KindADX  Kind = "adx"
	KindVWAP Kind = "vwap"
)

// Spec names one indicator column to attach to every bar
type Spec struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Period int    `json:"period"`
}

// Annotate returns a copy of series with the requested indicators attached.
// Warm-up bars carry NaN for indicators that are not ready yet.
func Annotate(series core.Series, specs ...Spec) (core.Series, error) {
	out := series.Clone()
	if len(out) == 0 || len(specs) == 0 {
		return out, nil
	}

	n := len(out)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range out {
		highs[i], lows[i], closes[i], volumes[i] = b.High, b.Low, b.Close, b.Volume
	}

	for _, spec := range specs {
		if spec.Period <= 0 {
			return nil, fmt.Errorf("indicator %s: period must be positive, got %d", spec.Name, spec.Period)
		}
		switch spec.Kind {
		case KindRSI, KindCCI, KindADX:
			if spec.Period < minOscillatorPeriod {
				return nil, fmt.Errorf("indicator %s: %s period must be at least %d, got %d",
					spec.Name, spec.Kind, minOscillatorPeriod, spec.Period)
			}
		}

		var values []float64
		switch spec.Kind {
		case KindSMA:
			values = SMA(closes, spec.Period)
		case KindEMA:
			values = EMA(closes, spec.Period)
		case KindRSI:
			values = RSI(closes, spec.Period)
		case KindCCI:
			values = CCI(highs, lows, closes, spec.Period)
		case KindADX:
			values = ADX(highs, lows, closes, spec.Period)
		case KindVWAP:
			values = VWAP(highs, lows, closes, volumes, spec.Period)
		default:
			return nil, fmt.Errorf("indicator %s: unknown kind %q", spec.Name, spec.Kind)
		}

		for i := range out {
			if out[i].Indicators == nil {
				out[i].Indicators = make(map[string]float64, len(specs))
			}
			out[i].Indicators[spec.Name] = values[i]
		}
	}

	return out, nil
}

// MaxPeriod returns the longest warm-up among specs
func MaxPeriod(specs []Spec) int {
	var m int
	for _, s := range specs {
		p := s.Period
		if s.Kind == KindADX {
			p = 2 * s.Period
		}
		if p > m {
			m = p
		}
	}
	return m
}
