package types

import "time"

// OrderStatus tracks a working order through its lifetime on the exchange.
type OrderStatus string

const (
	OrderStatusNone     OrderStatus = ""
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusDone     OrderStatus = "done"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusCanceled OrderStatus = "canceled"
)

// RejectReason values the engine recognizes. Anything else on a rejected
// order is treated as a fatal order error.
const (
	RejectReasonPostOnly = "post only"
	RejectReasonBalance  = "balance"
	RejectReasonPrice    = "price"
)

// OrderType distinguishes resting (maker) from immediately-matched (taker)
// orders; the two carry different fees.
type OrderType string

const (
	OrderTypeMaker OrderType = "maker"
	OrderTypeTaker OrderType = "taker"
)

// Order is the single authoritative working order for one side. A
// cancel-then-reorder replaces the identity; RemainingSize only decreases
// within one instance.
type Order struct {
	OrderID       string
	OrderLinkID   string
	ProductID     string
	Side          Side
	Price         float64
	Size          float64
	Fee           float64
	OrigSize      float64
	RemainingSize float64
	FilledSize    float64
	OrigPrice     float64
	OrderType     OrderType
	Status        OrderStatus
	RejectReason  string
	PostOnly      bool
	CancelAfter   string
	OrigTime      time.Time // first placement
	Time          time.Time // latest exchange timestamp
	LocalTime     time.Time // last local touch, drives reprice timing
	DoneAt        time.Time
}

// MyTrade is one executed fill, appended to the engine's trade history.
// Immutable once recorded. Profit is measured against the previous fill on
// the same side, not against the market.
type MyTrade struct {
	OrderID       string
	Time          time.Time
	ExecutionTime time.Duration
	Slippage      float64
	Type          Side
	Size          float64
	Fee           float64
	Price         float64
	OrderType     OrderType
	Profit        float64
	HasProfit     bool
	CancelAfter   string
}
