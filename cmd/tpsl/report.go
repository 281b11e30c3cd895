package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/newthinker/tpsl/internal/backtest"
)

// printSummary writes one row per result
func printSummary(w io.Writer, results []*backtest.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tSYMBOL\tBARS\tSIGNALS\tCLOSED\tOPEN\tWIN%\tPNL\tPF\tMAX DD\tPASS")
	for _, r := range results {
		s := r.Stats
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.1f\t%.4f\t%s\t%.4f\t%s\n",
			r.Strategy, r.Symbol, r.Bars, len(r.Signals), s.ClosedTrades, s.OpenTrades,
			s.WinRate*100, s.TotalPnL, formatPF(s.ProfitFactor), s.MaxDrawdown, passMark(s.MeetsCriteria))
	}
	return tw.Flush()
}

// printTrades lists the closed trades of a result in signal order
func printTrades(w io.Writer, r *backtest.Result) error {
	fmt.Fprintf(w, "\n%s %s trades\n", r.Strategy, r.Symbol)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSIDE\tENTRY\tTP\tSL\tCLOSED BY\tEXIT TIME\tRESULT")
	for _, t := range r.Trades {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\t%s\t%s\t%g\n",
			t.Time.Format(time.RFC3339), t.Side, t.Entry, t.TakeProfit, t.StopLoss,
			t.ClosedBy, t.ExitTime.Format(time.RFC3339), t.Result)
	}
	for _, o := range r.Open {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\topen\t-\t-\n",
			o.Time.Format(time.RFC3339), o.Side, o.Entry, o.TakeProfit, o.StopLoss)
	}
	return tw.Flush()
}

func formatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}

func passMark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
