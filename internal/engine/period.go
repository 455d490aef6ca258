package engine

import (
	"strconv"
	"time"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

// initBuffer creates the first period, anchored to the bucket boundary that
// contains the given trade.
func (e *Engine) initBuffer(trade types.Trade) {
	s := e.s
	start := trade.Time.Truncate(e.period)
	s.Period = &types.Period{
		PeriodID:  periodID(start, e.period),
		Size:      e.period,
		Time:      start,
		CloseTime: start.Add(e.period - time.Millisecond),
		Open:      trade.Price,
		High:      trade.Price,
		Low:       trade.Price,
		Close:     trade.Price,
		EMA:       map[string]float64{},
	}
	s.seenTradeIDs = map[string]struct{}{}
}

// rollPeriod pushes the closed period onto the lookback (newest first),
// trims it to the configured depth, and opens the next bucket. Gaps in the
// tape still produce one period per elapsed bucket so the lookback stays
// contiguous.
func (e *Engine) rollPeriod(trade types.Trade) {
	s := e.s
	for trade.Time.After(s.Period.CloseTime) {
		s.Lookback = append([]*types.Period{s.Period}, s.Lookback...)
		if max := e.opts.KeepLookbackPeriods; max > 0 && len(s.Lookback) > max {
			s.Lookback = s.Lookback[:max]
		}
		next := s.Period.Time.Add(e.period)
		prevClose := s.Period.Close
		s.Period = &types.Period{
			PeriodID:  periodID(next, e.period),
			Size:      e.period,
			Time:      next,
			CloseTime: next.Add(e.period - time.Millisecond),
			Open:      prevClose,
			High:      prevClose,
			Low:       prevClose,
			Close:     prevClose,
			EMA:       map[string]float64{},
		}
	}
	s.seenTradeIDs = map[string]struct{}{}
}

// updatePeriod folds a tick into the current period and re-runs the
// strategy's per-tick calculation.
func (e *Engine) updatePeriod(trade types.Trade) {
	s := e.s
	p := s.Period
	if trade.Price > p.High {
		p.High = trade.Price
	}
	if p.Low == 0 || trade.Price < p.Low {
		p.Low = trade.Price
	}
	p.Close = trade.Price
	p.Volume += trade.Size
	p.LatestTradeTime = trade.Time
	if trade.TradeID != "" {
		s.seenTradeIDs[trade.TradeID] = struct{}{}
	}

	e.strategy.Calculate(s)
}

func periodID(start time.Time, length time.Duration) string {
	return strconv.FormatInt(start.UnixMilli()/length.Milliseconds(), 10)
}
