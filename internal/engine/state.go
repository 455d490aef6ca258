package engine

import (
	"time"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// Signal is a pending trading decision produced by the strategy or a stop.
type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
)

// Side converts the signal to an order side. Only valid for buy/sell.
func (s Signal) Side() types.Side {
	if s == SignalSell {
		return types.SideSell
	}
	return types.SideBuy
}

// Opposite flips a buy to a sell and vice versa.
func (s Signal) Opposite() Signal {
	switch s {
	case SignalBuy:
		return SignalSell
	case SignalSell:
		return SignalBuy
	default:
		return SignalNone
	}
}

// State is the single trading-state struct every component operates on.
// All mutation happens on the engine's dispatch goroutine; nothing here is
// locked.
type State struct {
	Options *config.EngineOptions

	ProductID string
	Asset     string
	Currency  string
	Product   types.Product

	Balance      types.Balance
	Quote        types.Quote
	AssetCapital float64

	// Current period and completed periods, most-recent-first, capped at
	// Options.KeepLookbackPeriods.
	Period   *types.Period
	Lookback []*types.Period

	// Fills this session plus restored fills from a prior session. MyTrades
	// is append-only and time-ordered.
	MyTrades     []*types.MyTrade
	MyPrevTrades []*types.MyTrade

	// At most one working order per side.
	BuyOrder  *types.Order
	SellOrder *types.Order

	Signal     Signal
	LastSignal Signal
	Action     string // "bought" or "sold", for reporting

	// Stop levels, recomputed on every fill. Zero means unset.
	SellStop       float64
	BuyStop        float64
	ProfitStop     float64
	ProfitStopHigh float64

	ActedOnStop    bool
	StopTriggered  string // which stop fired last, for reporting
	LastTradeWorth float64

	LastBuyPrice  float64
	LastSellPrice float64

	// Pinned re-order prices; override quote-derived pricing when set.
	NextBuyPrice  float64
	NextSellPrice float64

	// Start of the post-loss buy cooldown window.
	BuyQuarantineTime time.Time

	// Session baseline, latched on the first balance sync and never mutated
	// afterwards. Orig* come from a restored prior session when present.
	StartCapital float64
	StartPrice   float64
	RealCapital  float64
	NetCurrency  float64
	OrigCapital  float64
	OrigPrice    float64

	InPreroll bool
	DayCount  int

	lastDay         int
	lastPeriodCheck time.Time
	seenTradeIDs    map[string]struct{}
}

// Trades returns the full fill history: prior-session fills followed by
// this session's.
func (s *State) Trades() []*types.MyTrade {
	if len(s.MyPrevTrades) == 0 {
		return s.MyTrades
	}
	out := make([]*types.MyTrade, 0, len(s.MyPrevTrades)+len(s.MyTrades))
	out = append(out, s.MyPrevTrades...)
	out = append(out, s.MyTrades...)
	return out
}

// LastTrade returns the most recent fill across both histories, or nil.
func (s *State) LastTrade() *types.MyTrade {
	if len(s.MyTrades) > 0 {
		return s.MyTrades[len(s.MyTrades)-1]
	}
	if len(s.MyPrevTrades) > 0 {
		return s.MyPrevTrades[len(s.MyPrevTrades)-1]
	}
	return nil
}

// WorkingOrder returns the working order for a side, or nil.
func (s *State) WorkingOrder(side types.Side) *types.Order {
	if side == types.SideBuy {
		return s.BuyOrder
	}
	return s.SellOrder
}

// SetWorkingOrder installs (or clears, with nil) the working order for a
// side. The single-writer discipline lives here: there is exactly one slot
// per side.
func (s *State) SetWorkingOrder(side types.Side, o *types.Order) {
	if side == types.SideBuy {
		s.BuyOrder = o
	} else {
		s.SellOrder = o
	}
}

// latestOppositeExtreme finds the reference fill for loss protection: for a
// buy, the lowest-priced fill in the trailing run of sells; for a sell, the
// highest-priced fill in the trailing run of buys. Returns nil when the
// history does not end in an opposite-side run.
func (s *State) latestOppositeExtreme(side types.Side) *types.MyTrade {
	trades := s.Trades()
	i := len(trades) - 1
	// Skip trailing same-side fills.
	for i >= 0 && trades[i].Type == side {
		i--
	}
	var extreme *types.MyTrade
	opp := side.Opposite()
	for ; i >= 0 && trades[i].Type == opp; i-- {
		t := trades[i]
		if extreme == nil {
			extreme = t
			continue
		}
		if side == types.SideBuy && t.Price < extreme.Price {
			extreme = t
		}
		if side == types.SideSell && t.Price > extreme.Price {
			extreme = t
		}
	}
	return extreme
}
