package engine

import (
	"github.com/quangdm-dev/zentrade/internal/monitoring"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// executeStop evaluates the protective stops against the current close.
// Sell stops only fire at period boundaries (doSellStop true); the trailing
// profit stop and the buy stop fire on any tick. Once a stop has acted, no
// further stop fires until the next fill rearms them.
func (e *Engine) executeStop(doSellStop bool) {
	s := e.s
	last := s.LastTrade()
	if last == nil {
		return
	}

	if last.Type == types.SideBuy {
		s.LastTradeWorth = (s.Period.Close - last.Price) / last.Price
	} else {
		s.LastTradeWorth = (last.Price - s.Period.Close) / last.Price
	}

	if s.ActedOnStop {
		return
	}

	var stop Signal
	if last.Type == types.SideBuy {
		if doSellStop && s.SellStop > 0 && s.Period.Close < s.SellStop {
			stop = SignalSell
			s.StopTriggered = "sell stop"
			e.log.LogStop("sell stop", s.LastTradeWorth)
		} else if e.opts.ProfitStopEnablePct > 0 && s.LastTradeWorth >= e.opts.ProfitStopEnablePct/100 {
			if s.Period.Close > s.ProfitStopHigh {
				s.ProfitStopHigh = s.Period.Close
			}
			s.ProfitStop = s.ProfitStopHigh * (1 - e.opts.ProfitStopPct/100)
		}
		if stop == SignalNone && s.ProfitStop > 0 && s.Period.Close < s.ProfitStop && s.LastTradeWorth > 0 {
			stop = SignalSell
			s.StopTriggered = "profit stop"
			e.log.LogStop("profit stop", s.LastTradeWorth)
		}
	} else {
		if s.BuyStop > 0 && s.Period.Close > s.BuyStop {
			stop = SignalBuy
			s.StopTriggered = "buy stop"
			e.log.LogStop("buy stop", s.LastTradeWorth)
		}
	}

	if stop == SignalNone {
		return
	}
	monitoring.RecordStop(s.StopTriggered)
	// Reverse mode is applied at execution, not here, so the signal flips
	// exactly once no matter where it came from.
	s.Signal = stop
	s.ActedOnStop = true
}
