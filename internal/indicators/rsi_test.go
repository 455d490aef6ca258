package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

// makeLookback builds a most-recent-first lookback from oldest-first closes.
func makeLookback(closes []float64) []*types.Period {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periods := make([]*types.Period, 0, len(closes))
	for i, c := range closes {
		periods = append([]*types.Period{{
			Time:  base.Add(time.Duration(i) * time.Minute),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
			EMA:   map[string]float64{},
		}}, periods...)
	}
	return periods
}

func TestRSI_InsufficientLookback(t *testing.T) {
	period := &types.Period{Close: 100}
	RSI(period, makeLookback([]float64{100, 101}), 14)

	assert.False(t, period.HasRSI)
	assert.Equal(t, 0.0, period.RSI)
}

func TestRSI_SeedsFromLookbackWindow(t *testing.T) {
	// Alternating +2/-1 closes: avg gain 2*7/14, avg loss 1*6/14 over the
	// 13 deltas inside a 14-period window.
	closes := []float64{100}
	for i := 0; i < 13; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[len(closes)-1]+2)
		} else {
			closes = append(closes, closes[len(closes)-1]-1)
		}
	}
	lookback := makeLookback(closes)
	period := &types.Period{Close: closes[len(closes)-1]}

	RSI(period, lookback, 14)
	require.True(t, period.HasRSI)

	assert.InDelta(t, 14.0/14, period.RSIAvgGain, 1e-9)
	assert.InDelta(t, 6.0/14, period.RSIAvgLoss, 1e-9)
	assert.Greater(t, period.RSI, 50.0)
	assert.Less(t, period.RSI, 100.0)
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	lookback := makeLookback(closes)
	period := &types.Period{Close: 116}

	RSI(period, lookback, 14)
	require.True(t, period.HasRSI)
	assert.Equal(t, 100.0, period.RSI)
	assert.Equal(t, 0.0, period.RSIAvgLoss)
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// Once seeded, each update carries (n-1)/n of the previous averages.
	prev := &types.Period{
		Close:      100,
		RSI:        50,
		RSIAvgGain: 1.0,
		RSIAvgLoss: 1.0,
		HasRSI:     true,
	}
	lookback := []*types.Period{prev}
	for len(lookback) < 14 {
		lookback = append(lookback, &types.Period{Close: 100})
	}

	period := &types.Period{Close: 114} // gain of 14
	RSI(period, lookback, 14)
	require.True(t, period.HasRSI)

	assert.InDelta(t, (1.0*13+14)/14, period.RSIAvgGain, 1e-9)
	assert.InDelta(t, (1.0*13+0)/14, period.RSIAvgLoss, 1e-9)

	rs := period.RSIAvgGain / period.RSIAvgLoss
	want := 100 - 100/(1+rs)
	assert.InDelta(t, want, period.RSI, 0.005) // stored at 2dp
}

func TestRSI_ConvergesDownOnFalls(t *testing.T) {
	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	lookback := makeLookback(closes)
	period := &types.Period{Close: 184}

	RSI(period, lookback, 14)
	require.True(t, period.HasRSI)
	assert.Equal(t, 0.0, period.RSIAvgGain)
	assert.Equal(t, 0.0, period.RSI)
}

func TestRSI_RoundsToTwoDecimals(t *testing.T) {
	closes := []float64{100, 103, 101, 105, 102, 108, 104, 110, 106, 112, 108, 115, 111, 118}
	lookback := makeLookback(closes)
	period := &types.Period{Close: 118}

	RSI(period, lookback, 14)
	require.True(t, period.HasRSI)
	assert.Equal(t, period.RSI, precisionRound(period.RSI, 2))
}
