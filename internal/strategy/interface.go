package strategy

import (
	"fmt"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
)

// Config holds strategy configuration
type Config struct {
	Enabled   bool
	SLPct     float64
	TPPct     float64
	Quantity  float64
	Precision *int // nil keeps the strategy default; 0 is a valid precision
	Params    map[string]any
}

// Params are the trade-level policy constants applied to every signal a
// strategy emits
type Params struct {
	SLPct     float64 `json:"sl_pct"`    // stop distance as a fraction of entry
	TPPct     float64 `json:"tp_pct"`    // target distance as a fraction of entry
	Quantity  float64 `json:"quantity"`  // fixed unit size
	Precision int     `json:"precision"` // decimal places for TP/SL prices
}

// Validate checks the trade parameters
func (p Params) Validate() error {
	if p.SLPct <= 0 || p.SLPct >= 1 {
		return core.WrapError(core.ErrStrategyInvalid, fmt.Errorf("sl_pct must be in (0, 1), got %v", p.SLPct))
	}
	if p.TPPct <= 0 || p.TPPct >= 1 {
		return core.WrapError(core.ErrStrategyInvalid, fmt.Errorf("tp_pct must be in (0, 1), got %v", p.TPPct))
	}
	if p.Quantity <= 0 {
		return core.WrapError(core.ErrStrategyInvalid, fmt.Errorf("quantity must be positive, got %v", p.Quantity))
	}
	if p.Precision < 0 || p.Precision > 12 {
		return core.WrapError(core.ErrStrategyInvalid, fmt.Errorf("precision must be in [0, 12], got %d", p.Precision))
	}
	return nil
}

// Apply overlays the trade parameters set in cfg onto p
func (p Params) Apply(cfg Config) Params {
	if cfg.SLPct != 0 {
		p.SLPct = cfg.SLPct
	}
	if cfg.TPPct != 0 {
		p.TPPct = cfg.TPPct
	}
	if cfg.Quantity != 0 {
		p.Quantity = cfg.Quantity
	}
	if cfg.Precision != nil {
		p.Precision = *cfg.Precision
	}
	return p
}

// Strategy defines the interface for predicate-based trading strategies.
//
// Buy and Sell are evaluated per bar against that bar's indicator values
// only. Both must return false when an indicator they read is not ready.
type Strategy interface {
	Name() string
	Description() string
	Indicators() []indicator.Spec
	Params() Params
	Init(cfg Config) error
	Buy(bar core.Bar) bool
	Sell(bar core.Bar) bool
}
