package strategy

import (
	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/indicator"
)

// Rule is a Strategy assembled from predicates. It lets callers inject an
// ad-hoc strategy without writing a new type.
type Rule struct {
	name        string
	description string
	specs       []indicator.Spec
	buy         Predicate
	sell        Predicate
	params      Params
}

// NewRule creates a predicate strategy. A nil predicate never fires.
func NewRule(name string, specs []indicator.Spec, buy, sell Predicate, params Params) *Rule {
	if buy == nil {
		buy = Never
	}
	if sell == nil {
		sell = Never
	}
	return &Rule{
		name:        name,
		description: "custom rule " + name,
		specs:       specs,
		buy:         buy,
		sell:        sell,
		params:      params,
	}
}

func (r *Rule) Name() string                 { return r.name }
func (r *Rule) Description() string          { return r.description }
func (r *Rule) Indicators() []indicator.Spec { return r.specs }
func (r *Rule) Params() Params               { return r.params }
func (r *Rule) Buy(bar core.Bar) bool        { return r.buy(bar) }
func (r *Rule) Sell(bar core.Bar) bool       { return r.sell(bar) }

// Init overlays configured trade parameters
func (r *Rule) Init(cfg Config) error {
	p := r.params.Apply(cfg)
	if err := p.Validate(); err != nil {
		return err
	}
	r.params = p
	return nil
}
