package indicator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// minOscillatorPeriod is the shortest period talib computes for RSI, CCI and ADX
const minOscillatorPeriod = 2

// RSI calculates the Relative Strength Index with Wilder smoothing.
// The first value is available at index period.
func RSI(prices []float64, period int) []float64 {
	if period < minOscillatorPeriod || len(prices) <= period {
		return nanSlice(len(prices))
	}
	return padWarmup(talib.Rsi(prices, period), period)
}

// CCI calculates the Commodity Channel Index on the typical price.
// A window with zero mean deviation yields 0.
func CCI(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if period < minOscillatorPeriod || n < period || len(highs) != n || len(lows) != n {
		return nanSlice(n)
	}
	return padWarmup(talib.Cci(highs, lows, closes, period), period-1)
}

// ADX calculates the Average Directional Index with Wilder smoothing.
// The first value is available at index 2*period-1.
func ADX(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if period < minOscillatorPeriod || n < 2*period || len(highs) != n || len(lows) != n {
		return nanSlice(n)
	}
	return padWarmup(talib.Adx(highs, lows, closes, period), 2*period-1)
}

// padWarmup replaces talib's zero-filled lookback region with NaN
func padWarmup(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

// VWAP calculates a rolling volume-weighted average of the typical price.
// Windows with zero volume fall back to the plain typical-price average.
func VWAP(highs, lows, closes, volumes []float64, period int) []float64 {
	n := len(closes)
	result := nanSlice(n)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n || len(volumes) != n {
		return result
	}

	for i := period - 1; i < n; i++ {
		var pv, vol, tpSum float64
		for j := i - period + 1; j <= i; j++ {
			tp := (highs[j] + lows[j] + closes[j]) / 3
			pv += tp * volumes[j]
			vol += volumes[j]
			tpSum += tp
		}
		if vol == 0 {
			result[i] = tpSum / float64(period)
			continue
		}
		result[i] = pv / vol
	}

	return result
}
