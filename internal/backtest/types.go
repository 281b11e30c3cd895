package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/newthinker/tpsl/internal/core"
	"github.com/newthinker/tpsl/internal/strategy"
)

// ClosedBy names the exit level that closed a trade
type ClosedBy string

const (
	ClosedByTP ClosedBy = "TP"
	ClosedBySL ClosedBy = "SL"
)

// TieBreak decides which level wins when a single bar touches both the
// take-profit and the stop-loss. OHLC bars carry no intrabar ordering, so
// either choice is a modeling assumption.
type TieBreak string

const (
	TieBreakTakeProfit TieBreak = "tp_first"
	TieBreakStopLoss   TieBreak = "sl_first"
)

// ParseTieBreak parses a tie-break policy name; empty selects take-profit first
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakTakeProfit:
		return TieBreakTakeProfit, nil
	case TieBreakStopLoss:
		return TieBreakStopLoss, nil
	default:
		return "", fmt.Errorf("unknown tie-break policy %q", s)
	}
}

// OpenSignal is a generated trade proposal that has not been resolved
type OpenSignal struct {
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol"`
	Strategy   string    `json:"strategy"`
	Side       core.Side `json:"side"`
	Quantity   float64   `json:"quantity"`
	Entry      float64   `json:"entry"`
	TakeProfit float64   `json:"take_profit"`
	StopLoss   float64   `json:"stop_loss"`
}

// ClosedTrade is a signal whose forward scan hit TP or SL
type ClosedTrade struct {
	OpenSignal
	ClosedBy  ClosedBy  `json:"closed_by"`
	ExitTime  time.Time `json:"exit_time"`
	ExitPrice float64   `json:"exit_price"`
	Result    float64   `json:"result"` // signed P&L per unit
}

// IsWin returns true if the trade was profitable
func (t ClosedTrade) IsWin() bool {
	return t.Result > 0
}

// PnL returns the trade result scaled by quantity
func (t ClosedTrade) PnL() float64 {
	return t.Result * t.Quantity
}

// Resolution is the outcome of simulating one signal: either a closed
// trade or the signal still open at the end of the series.
type Resolution struct {
	signal OpenSignal
	trade  *ClosedTrade
}

// Closed wraps a closed trade
func Closed(t ClosedTrade) Resolution {
	return Resolution{signal: t.OpenSignal, trade: &t}
}

// StillOpen wraps a signal that was not resolved
func StillOpen(s OpenSignal) Resolution {
	return Resolution{signal: s}
}

// IsClosed reports whether the signal hit one of its exit levels
func (r Resolution) IsClosed() bool {
	return r.trade != nil
}

// Trade returns the closed trade, if any
func (r Resolution) Trade() (ClosedTrade, bool) {
	if r.trade == nil {
		return ClosedTrade{}, false
	}
	return *r.trade, true
}

// Signal returns the originating signal
func (r Resolution) Signal() OpenSignal {
	return r.signal
}

// Thresholds are the acceptance limits a strategy must strictly exceed
type Thresholds struct {
	PnL          float64 `json:"pnl" mapstructure:"pnl"`
	WinRate      float64 `json:"win_rate" mapstructure:"win_rate"`
	ProfitFactor float64 `json:"profit_factor" mapstructure:"profit_factor"`
}

// DefaultThresholds returns the acceptance limits used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{PnL: 0.5, WinRate: 0.4, ProfitFactor: 1.3}
}

// Stats holds performance statistics over closed trades.
//
// ProfitFactor is +Inf when there are winning trades and no losing ones,
// and 0 when both gross sums are 0. It is encoded as "inf" in JSON.
type Stats struct {
	ClosedTrades  int     `json:"closed_trades"`
	OpenTrades    int     `json:"open_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`
	WinRate       float64 `json:"win_rate"` // fraction in [0, 1]
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"` // largest peak-to-trough fall of cumulative pnl
	MeetsCriteria bool    `json:"meets_criteria"`
}

const infString = "inf"

type statsAlias Stats

type statsJSON struct {
	statsAlias
	ProfitFactor any `json:"profit_factor"`
}

func (s Stats) MarshalJSON() ([]byte, error) {
	var pf any = s.ProfitFactor
	if math.IsInf(s.ProfitFactor, 1) {
		pf = infString
	}
	return json.Marshal(statsJSON{statsAlias: statsAlias(s), ProfitFactor: pf})
}

func (s *Stats) UnmarshalJSON(data []byte) error {
	var raw statsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Stats(raw.statsAlias)
	switch v := raw.ProfitFactor.(type) {
	case float64:
		s.ProfitFactor = v
	case string:
		if v != infString {
			return fmt.Errorf("invalid profit_factor %q", v)
		}
		s.ProfitFactor = math.Inf(1)
	case nil:
		s.ProfitFactor = 0
	default:
		return fmt.Errorf("invalid profit_factor %v", v)
	}
	return nil
}

// Result holds the complete backtest output
type Result struct {
	ID        string          `json:"id,omitempty"`
	Strategy  string          `json:"strategy"`
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval,omitempty"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Params    strategy.Params `json:"params"`
	TieBreak  TieBreak        `json:"tie_break"`
	Bars      int             `json:"bars"`
	Signals   []OpenSignal    `json:"signals"`
	Trades    []ClosedTrade   `json:"trades"`
	Open      []OpenSignal    `json:"open"`
	Stats     Stats           `json:"stats"`
}
