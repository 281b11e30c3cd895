package strategy

// Float reads a numeric strategy parameter. YAML decoding yields int for
// whole numbers, so both are accepted.
func Float(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int reads an integer strategy parameter
func Int(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

type withParams struct {
	Strategy
	params Params
}

func (w withParams) Params() Params { return w.params }

// WithParams returns s with its trade parameters replaced by p. The
// predicates and indicators of s are shared.
func WithParams(s Strategy, p Params) Strategy {
	return withParams{Strategy: s, params: p}
}
