package types

import "time"

// Side identifies which side of the book an order or fill is on.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Trade is a single exchange tick. Immutable once received; TradeID is
// unique per product.
type Trade struct {
	TradeID string
	Time    time.Time
	Price   float64
	Size    float64
	Side    Side
}

// Period is a fixed-length OHLCV bucket built from ticks. The current
// period is mutated in place until it rolls into the lookback.
type Period struct {
	PeriodID        string
	Size            time.Duration
	Time            time.Time // bucket start
	CloseTime       time.Time // inclusive bucket end
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          float64
	LatestTradeTime time.Time

	// Rolling indicator state carried across periods.
	RSI        float64
	RSIAvgGain float64
	RSIAvgLoss float64
	HasRSI     bool
	EMA        map[string]float64
}

// Contains reports whether t falls inside the period's bucket.
func (p *Period) Contains(t time.Time) bool {
	return !t.Before(p.Time) && !t.After(p.CloseTime)
}

// Quote is the current top of book for a product.
type Quote struct {
	Bid float64
	Ask float64
}

// Balance is the exchange-reported account state for one product's asset
// and currency. Deposit is the capped tradeable currency amount, not the
// total currency balance.
type Balance struct {
	Asset        float64
	Currency     float64
	AssetHold    float64
	CurrencyHold float64
	Deposit      float64
}

// Product describes one tradeable pair and its order constraints.
type Product struct {
	ID             string
	Asset          string
	Currency       string
	MinSize        float64
	MinTotal       float64
	MaxSize        float64
	AssetIncrement float64
	PriceIncrement float64
}
