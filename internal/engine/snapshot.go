package engine

import (
	"time"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

// Snapshot is a read-only copy of the trading state plus derived session
// statistics, built on the dispatch goroutine and safe to hand to other
// goroutines.
type Snapshot struct {
	Time      time.Time
	ProductID string
	Asset     string
	Currency  string
	Mode      string
	Strategy  string

	Period   types.Period
	Lookback int

	Balance      types.Balance
	AssetCapital float64
	Price        float64

	Signal        Signal
	Action        string
	StopTriggered string
	SellStop      float64
	BuyStop       float64
	ProfitStop    float64

	BuyOrder  *types.Order
	SellOrder *types.Order

	Trades     []types.MyTrade
	BuyCount   int
	SellCount  int
	LossCount  int
	DayCount   int
	InPreroll  bool
	LastSignal Signal

	// Session economics. Consolidated marks open asset to the latest close;
	// BuyHold is what the starting capital would be worth if simply held as
	// asset from the first sync.
	StartCapital float64
	StartPrice   float64
	Consolidated float64
	Profit       float64
	BuyHold      float64
	VsBuyHold    float64
	ProfitPerDay float64
}

func (e *Engine) buildSnapshot() Snapshot {
	s := e.s
	snap := Snapshot{
		Time:          e.clock.Now(),
		ProductID:     s.ProductID,
		Asset:         s.Asset,
		Currency:      s.Currency,
		Mode:          string(e.cfg.Mode),
		Strategy:      e.strategy.Name(),
		Lookback:      len(s.Lookback),
		Balance:       s.Balance,
		AssetCapital:  s.AssetCapital,
		Signal:        s.Signal,
		Action:        s.Action,
		StopTriggered: s.StopTriggered,
		SellStop:      s.SellStop,
		BuyStop:       s.BuyStop,
		ProfitStop:    s.ProfitStop,
		DayCount:      s.DayCount,
		InPreroll:     s.InPreroll,
		LastSignal:    s.LastSignal,
		StartCapital:  s.StartCapital,
		StartPrice:    s.StartPrice,
	}
	if s.Period != nil {
		snap.Period = *s.Period
		snap.Price = s.Period.Close
	}
	if s.BuyOrder != nil {
		o := *s.BuyOrder
		snap.BuyOrder = &o
	}
	if s.SellOrder != nil {
		o := *s.SellOrder
		snap.SellOrder = &o
	}

	for _, t := range s.Trades() {
		snap.Trades = append(snap.Trades, *t)
		if t.Type == types.SideBuy {
			snap.BuyCount++
		} else {
			snap.SellCount++
			if t.HasProfit && t.Profit < 0 {
				snap.LossCount++
			}
		}
	}

	if snap.Price > 0 && s.StartCapital > 0 {
		snap.Consolidated = s.NetCurrency + s.Balance.Asset*snap.Price
		snap.Profit = (snap.Consolidated - s.StartCapital) / s.StartCapital
		snap.BuyHold = snap.Price * (s.StartCapital / s.StartPrice)
		if snap.BuyHold > 0 {
			snap.VsBuyHold = (snap.Consolidated - snap.BuyHold) / snap.BuyHold
		}
		if s.DayCount > 0 {
			snap.ProfitPerDay = snap.Profit / float64(s.DayCount)
		}
	}
	return snap
}

// Snapshot builds a state snapshot on the dispatch goroutine and returns
// it to the caller. Safe to call from any goroutine while the engine runs.
func (e *Engine) Snapshot() Snapshot {
	ch := make(chan Snapshot, 1)
	select {
	case <-e.doneCh:
		// Dispatch loop already exited; state is quiescent.
		return e.buildSnapshot()
	case e.tasks <- func() { ch <- e.buildSnapshot() }:
	}
	select {
	case snap := <-ch:
		return snap
	case <-e.doneCh:
		return e.buildSnapshot()
	}
}
