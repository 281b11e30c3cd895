package confluence

import (
	"fmt"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
	"github.com/newthinker/tpsl/internal/strategy"
)

const (
	indEMA  = "ema"
	indSMA  = "sma"
	indVWAP = "vwap"
	indRSI  = "rsi"
	indADX  = "adx"
)

// Confluence requires moving-average structure, an RSI extreme and a
// trending ADX to agree before it fires.
//
// Buy:  ema > vwap, sma > ema, rsi < oversold, adx > min.
// Sell: ema < vwap, sma < ema, rsi > overbought, adx > min.
type Confluence struct {
	emaPeriod  int
	smaPeriod  int
	vwapPeriod int
	rsiPeriod  int
	adxPeriod  int
	oversold   float64
	overbought float64
	adxMin     float64
	params     strategy.Params
}

func New() *Confluence {
	return &Confluence{
		emaPeriod:  12,
		smaPeriod:  40,
		vwapPeriod: 12,
		rsiPeriod:  40,
		adxPeriod:  40,
		oversold:   30,
		overbought: 70,
		adxMin:     20,
		params: strategy.Params{
			SLPct:     0.0075,
			TPPct:     0.0215,
			Quantity:  100,
			Precision: 2,
		},
	}
}

func (c *Confluence) Name() string { return "confluence" }

func (c *Confluence) Description() string {
	return fmt.Sprintf("EMA%d/SMA%d/VWAP%d structure with RSI%d %.0f/%.0f and ADX%d > %.0f",
		c.emaPeriod, c.smaPeriod, c.vwapPeriod, c.rsiPeriod, c.oversold, c.overbought, c.adxPeriod, c.adxMin)
}

func (c *Confluence) Indicators() []indicator.Spec {
	return []indicator.Spec{
		{Name: indEMA, Kind: indicator.KindEMA, Period: c.emaPeriod},
		{Name: indSMA, Kind: indicator.KindSMA, Period: c.smaPeriod},
		{Name: indVWAP, Kind: indicator.KindVWAP, Period: c.vwapPeriod},
		{Name: indRSI, Kind: indicator.KindRSI, Period: c.rsiPeriod},
		{Name: indADX, Kind: indicator.KindADX, Period: c.adxPeriod},
	}
}

func (c *Confluence) Params() strategy.Params { return c.params }

func (c *Confluence) Init(cfg strategy.Config) error {
	next := *c
	for key, f := range map[string]struct {
		dst *int
		min int
	}{
		"ema_period":  {&next.emaPeriod, 1},
		"sma_period":  {&next.smaPeriod, 1},
		"vwap_period": {&next.vwapPeriod, 1},
		"rsi_period":  {&next.rsiPeriod, 2},
		"adx_period":  {&next.adxPeriod, 2},
	} {
		if v, ok := strategy.Int(cfg.Params, key); ok {
			if v < f.min {
				return core.WrapError(core.ErrStrategyInvalid, fmt.Errorf("%s must be at least %d, got %d", key, f.min, v))
			}
			*f.dst = v
		}
	}
	if v, ok := strategy.Float(cfg.Params, "oversold"); ok {
		next.oversold = v
	}
	if v, ok := strategy.Float(cfg.Params, "overbought"); ok {
		next.overbought = v
	}
	if v, ok := strategy.Float(cfg.Params, "adx_min"); ok {
		next.adxMin = v
	}

	next.params = c.params.Apply(cfg)
	if err := next.params.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *Confluence) Buy(bar core.Bar) bool {
	return strategy.All(
		strategy.Greater(indEMA, indVWAP),
		strategy.Greater(indSMA, indEMA),
		strategy.Below(indRSI, c.oversold),
		strategy.Above(indADX, c.adxMin),
	)(bar)
}

func (c *Confluence) Sell(bar core.Bar) bool {
	return strategy.All(
		strategy.Greater(indVWAP, indEMA),
		strategy.Greater(indEMA, indSMA),
		strategy.Above(indRSI, c.overbought),
		strategy.Above(indADX, c.adxMin),
	)(bar)
}
