package backtest

import (
	"math"
)

// Aggregate reduces closed trades into summary statistics and checks them
// against the acceptance thresholds. It does not modify trades. An empty
// trade list never meets the criteria, whatever the thresholds.
func Aggregate(trades []ClosedTrade, th Thresholds) Stats {
	var stats Stats
	stats.ClosedTrades = len(trades)
	if len(trades) == 0 {
		return stats
	}

	for _, t := range trades {
		stats.TotalPnL += t.Result
		switch {
		case t.Result > 0:
			stats.WinningTrades++
			stats.GrossProfit += t.Result
		case t.Result < 0:
			stats.LosingTrades++
			stats.GrossLoss += -t.Result
		}
	}

	stats.WinRate = float64(stats.WinningTrades) / float64(len(trades))
	stats.ProfitFactor = profitFactor(stats.GrossProfit, stats.GrossLoss)
	stats.MaxDrawdown = calculateMaxDrawdown(trades)
	stats.MeetsCriteria = stats.TotalPnL > th.PnL &&
		stats.WinRate > th.WinRate &&
		stats.ProfitFactor > th.ProfitFactor

	return stats
}

// profitFactor returns +Inf with profit and no loss, 0 with neither
func profitFactor(gross, loss float64) float64 {
	if loss == 0 {
		if gross > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return gross / loss
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of the
// cumulative per-unit result, in trade order
func calculateMaxDrawdown(trades []ClosedTrade) float64 {
	var maxDD, peak, cumulative float64

	for _, t := range trades {
		cumulative += t.Result
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}

	return maxDD
}
