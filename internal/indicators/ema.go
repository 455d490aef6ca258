package indicators

import "github.com/quangdm-dev/zentrade/pkg/types"

// EMA updates an exponential moving average of period closes, stored on the
// current period under key. The first value seeds from a simple average of
// the lookback window; subsequent periods apply the usual 2/(n+1) smoothing
// against the previous period's value.
//
// Lookback is ordered most-recent-first.
func EMA(period *types.Period, lookback []*types.Period, key string, length int) {
	if period.EMA == nil {
		period.EMA = make(map[string]float64)
	}
	if len(lookback) == 0 {
		return
	}

	if prevEMA, ok := lookback[0].EMA[key]; ok {
		weight := 2 / (float64(length) + 1)
		period.EMA[key] = prevEMA + (period.Close-prevEMA)*weight
		return
	}

	if len(lookback) < length {
		return
	}
	sum := period.Close
	for _, p := range lookback[:length-1] {
		sum += p.Close
	}
	period.EMA[key] = sum / float64(length)
}
