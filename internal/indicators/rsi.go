package indicators

import (
	"math"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

// RSI updates the Relative Strength Index on the current period using a
// Wilder smoothed average of gains and losses. The first computation seeds
// the averages from a full lookback window; after that each period updates
// them with weight (n-1)/n old + 1/n new, carried forward on the period
// itself so the calculation is incremental.
//
// Lookback is ordered most-recent-first. Nothing happens until the lookback
// holds at least length completed periods.
func RSI(period *types.Period, lookback []*types.Period, length int) {
	if len(lookback) < length {
		return
	}

	prev := lookback[0]
	if !prev.HasRSI {
		var gainSum, lossSum float64
		var lastClose float64
		var haveLast bool
		// Oldest-first over the seed window.
		for i := length - 1; i >= 0; i-- {
			p := lookback[i]
			if haveLast {
				if p.Close > lastClose {
					gainSum += p.Close - lastClose
				} else {
					lossSum += lastClose - p.Close
				}
			}
			lastClose = p.Close
			haveLast = true
		}
		period.RSIAvgGain = gainSum / float64(length)
		period.RSIAvgLoss = lossSum / float64(length)
	} else {
		currentGain := math.Max(0, period.Close-prev.Close)
		currentLoss := math.Max(0, prev.Close-period.Close)
		n := float64(length)
		period.RSIAvgGain = (prev.RSIAvgGain*(n-1) + currentGain) / n
		period.RSIAvgLoss = (prev.RSIAvgLoss*(n-1) + currentLoss) / n
	}

	if period.RSIAvgLoss == 0 {
		period.RSI = 100
	} else {
		rs := period.RSIAvgGain / period.RSIAvgLoss
		period.RSI = precisionRound(100-100/(1+rs), 2)
	}
	period.HasRSI = true
}

func precisionRound(number float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(number*factor) / factor
}
