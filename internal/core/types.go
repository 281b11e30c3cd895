package core

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Side is the direction of a trade signal
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Bar represents a candlestick annotated with indicator values
type Bar struct {
	Symbol     string
	Interval   string // "1m", "5m", "1d"
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Indicators map[string]float64
}

// Indicator returns the named indicator value. The second result is false
// while the indicator is absent or still warming up (NaN).
func (b Bar) Indicator(name string) (float64, bool) {
	v, ok := b.Indicators[name]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Validate checks the OHLC invariants of a single bar
func (b Bar) Validate() error {
	for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("price %v out of range", p)
		}
	}
	if b.Low > b.High {
		return fmt.Errorf("low %v above high %v", b.Low, b.High)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("open %v outside [%v, %v]", b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("close %v outside [%v, %v]", b.Close, b.Low, b.High)
	}
	return nil
}

// Series is an ordered sequence of bars, ascending by time with no duplicates.
// Consumers treat it as read-only.
type Series []Bar

// Validate checks ordering and per-bar invariants. Violations are reported as
// ErrInvalidBarSeries with the offending index.
func (s Series) Validate() error {
	for i, bar := range s {
		if err := bar.Validate(); err != nil {
			return WrapError(ErrInvalidBarSeries,
				fmt.Errorf("bar %d (%s): %w", i, bar.Time.Format(time.RFC3339), err))
		}
		if i == 0 {
			continue
		}
		prev := s[i-1].Time
		if bar.Time.Equal(prev) {
			return WrapError(ErrInvalidBarSeries,
				fmt.Errorf("bar %d: duplicate timestamp %s", i, bar.Time.Format(time.RFC3339)))
		}
		if bar.Time.Before(prev) {
			return WrapError(ErrInvalidBarSeries,
				fmt.Errorf("bar %d: timestamp %s before %s", i, bar.Time.Format(time.RFC3339), prev.Format(time.RFC3339)))
		}
	}
	return nil
}

// IndexOf returns the position of the bar opened at t
func (s Series) IndexOf(t time.Time) (int, bool) {
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].Time.Before(t)
	})
	if i < len(s) && s[i].Time.Equal(t) {
		return i, true
	}
	return -1, false
}

// Closes extracts closing prices
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Close
	}
	return out
}

// Clone returns a copy whose indicator maps are independent of the receiver
func (s Series) Clone() Series {
	out := make(Series, len(s))
	for i, b := range s {
		out[i] = b
		if b.Indicators != nil {
			m := make(map[string]float64, len(b.Indicators))
			for k, v := range b.Indicators {
				m[k] = v
			}
			out[i].Indicators = m
		}
	}
	return out
}
