package cci_adx

import (
	"fmt"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
	"github.com/newthinker/tpsl/internal/strategy"
)

const (
	indCCI = "cci"
	indADX = "adx"
)

// CCIADX trades CCI breakouts confirmed by a trending ADX.
// Buy when CCI > level and ADX > min; sell when CCI < -level and ADX > min.
type CCIADX struct {
	cciPeriod int
	adxPeriod int
	cciLevel  float64
	adxMin    float64
	params    strategy.Params
}

// New creates a CCI/ADX strategy with the default trade parameters
// (1% stop, 1.5% target, 100 units, prices rounded to one decimal)
func New() *CCIADX {
	return &CCIADX{
		cciPeriod: 20,
		adxPeriod: 14,
		cciLevel:  100,
		adxMin:    25,
		params: strategy.Params{
			SLPct:     0.01,
			TPPct:     0.015,
			Quantity:  100,
			Precision: 1,
		},
	}
}

func (c *CCIADX) Name() string {
	return "cci_adx"
}

func (c *CCIADX) Description() string {
	return fmt.Sprintf("CCI(%d) ±%.0f with ADX(%d) > %.0f", c.cciPeriod, c.cciLevel, c.adxPeriod, c.adxMin)
}

func (c *CCIADX) Indicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: indCCI, Kind: indicator.KindCCI, Period: c.cciPeriod},
		{Name: indADX, Kind: indicator.KindADX, Period: c.adxPeriod},
	}
}

func (c *CCIADX) Params() strategy.Params {
	return c.params
}

// Init applies cfg to a copy and keeps it only when every value is valid
func (c *CCIADX) Init(cfg strategy.Config) error {
	next := *c
	if v, ok := strategy.Int(cfg.Params, "cci_period"); ok {
		next.cciPeriod = v
	}
	if v, ok := strategy.Int(cfg.Params, "adx_period"); ok {
		next.adxPeriod = v
	}
	if v, ok := strategy.Float(cfg.Params, "cci_level"); ok {
		next.cciLevel = v
	}
	if v, ok := strategy.Float(cfg.Params, "adx_min"); ok {
		next.adxMin = v
	}
	if next.cciPeriod < 2 || next.adxPeriod < 2 {
		return core.WrapError(core.ErrStrategyInvalid,
			fmt.Errorf("periods must be at least 2, got cci=%d adx=%d", next.cciPeriod, next.adxPeriod))
	}

	next.params = c.params.Apply(cfg)
	if err := next.params.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *CCIADX) Buy(bar core.Bar) bool {
	return strategy.All(
		strategy.Above(indCCI, c.cciLevel),
		strategy.Above(indADX, c.adxMin),
	)(bar)
}

func (c *CCIADX) Sell(bar core.Bar) bool {
	return strategy.All(
		strategy.Below(indCCI, -c.cciLevel),
		strategy.Above(indADX, c.adxMin),
	)(bar)
}
