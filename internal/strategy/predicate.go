package strategy

import "github.com/newthinker/tpsl/internal/core"

// Predicate is a condition over one bar
type Predicate func(bar core.Bar) bool

// All is true when every predicate holds. It short-circuits on the first
// false, so later predicates never see a bar an earlier one rejected.
func All(preds ...Predicate) Predicate {
	return func(bar core.Bar) bool {
		if len(preds) == 0 {
			return false
		}
		for _, p := range preds {
			if !p(bar) {
				return false
			}
		}
		return true
	}
}

// Above holds when indicator name is strictly greater than level
func Above(name string, level float64) Predicate {
	return func(bar core.Bar) bool {
		v, ok := bar.Indicator(name)
		return ok && v > level
	}
}

// Below holds when indicator name is strictly less than level
func Below(name string, level float64) Predicate {
	return func(bar core.Bar) bool {
		v, ok := bar.Indicator(name)
		return ok && v < level
	}
}

// Greater holds when indicator a is strictly greater than indicator b
func Greater(a, b string) Predicate {
	return func(bar core.Bar) bool {
		va, ok := bar.Indicator(a)
		if !ok {
			return false
		}
		vb, ok := bar.Indicator(b)
		return ok && va > vb
	}
}

// Never is a predicate that never fires
func Never(core.Bar) bool { return false }
