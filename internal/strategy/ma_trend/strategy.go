package ma_trend

import (
	"fmt"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
	"github.com/newthinker/tpsl/internal/strategy"
)

const (
	indFast = "ma_fast"
	indSlow = "ma_slow"
)

// MATrend follows the moving average regime: buy while the fast SMA is above
// the slow SMA and price trades above the fast SMA, sell on the mirror image.
type MATrend struct {
	fastPeriod int
	slowPeriod int
	params     strategy.Params
}

// New creates a trend strategy over SMA(fast) and SMA(slow)
func New(fastPeriod, slowPeriod int) *MATrend {
	return &MATrend{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		params: strategy.Params{
			SLPct:     0.01,
			TPPct:     0.02,
			Quantity:  100,
			Precision: 2,
		},
	}
}

func (m *MATrend) Name() string {
	return "ma_trend"
}

func (m *MATrend) Description() string {
	return fmt.Sprintf("MA Trend (%d/%d)", m.fastPeriod, m.slowPeriod)
}

func (m *MATrend) Indicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: indFast, Kind: indicator.KindSMA, Period: m.fastPeriod},
		{Name: indSlow, Kind: indicator.KindSMA, Period: m.slowPeriod},
	}
}

func (m *MATrend) Params() strategy.Params {
	return m.params
}

func (m *MATrend) Init(cfg strategy.Config) error {
	fast, slow := m.fastPeriod, m.slowPeriod
	if v, ok := strategy.Int(cfg.Params, "fast_period"); ok {
		fast = v
	}
	if v, ok := strategy.Int(cfg.Params, "slow_period"); ok {
		slow = v
	}
	if fast <= 0 || slow <= fast {
		return core.WrapError(core.ErrStrategyInvalid,
			fmt.Errorf("need 0 < fast_period < slow_period, got %d/%d", fast, slow))
	}

	p := m.params.Apply(cfg)
	if err := p.Validate(); err != nil {
		return err
	}
	m.fastPeriod, m.slowPeriod, m.params = fast, slow, p
	return nil
}

func (m *MATrend) Buy(bar core.Bar) bool {
	return strategy.All(strategy.Greater(indFast, indSlow), closeAbove(indFast))(bar)
}

func (m *MATrend) Sell(bar core.Bar) bool {
	return strategy.All(strategy.Greater(indSlow, indFast), closeBelow(indFast))(bar)
}

func closeAbove(name string) strategy.Predicate {
	return func(bar core.Bar) bool {
		v, ok := bar.Indicator(name)
		return ok && bar.Close > v
	}
}

func closeBelow(name string) strategy.Predicate {
	return func(bar core.Bar) bool {
		v, ok := bar.Indicator(name)
		return ok && bar.Close < v
	}
}
