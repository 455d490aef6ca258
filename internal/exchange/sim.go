package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

// SimExchange is an in-process exchange used for paper and sim modes. It
// keeps local balances and a book of resting orders, and fills them from
// the engine's own tick stream via ProcessTrade: a resting buy fills when a
// trade prints at or below its price, a resting sell when a trade prints at
// or above it. Taker orders fill immediately at the last trade price.
type SimExchange struct {
	mu        sync.Mutex
	products  []types.Product
	balance   types.Balance
	orders    map[string]*types.Order
	lastPrice float64
	lastTime  time.Time
	makerFee  float64
	takerFee  float64
	now       func() time.Time
	entropy   *rand.Rand
}

// SimConfig configures a simulated exchange.
type SimConfig struct {
	Products        []types.Product
	AssetCapital    float64
	CurrencyCapital float64
	MakerFee        float64 // percent, negative for rebates
	TakerFee        float64 // percent
	Now             func() time.Time
}

// NewSimExchange creates a simulated exchange with the given starting state.
func NewSimExchange(cfg SimConfig) *SimExchange {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SimExchange{
		products: cfg.Products,
		balance: types.Balance{
			Asset:    cfg.AssetCapital,
			Currency: cfg.CurrencyCapital,
		},
		orders:   make(map[string]*types.Order),
		makerFee: cfg.MakerFee,
		takerFee: cfg.TakerFee,
		now:      now,
		entropy:  rand.New(rand.NewSource(now().UnixNano())),
	}
}

func (s *SimExchange) Name() string { return "sim" }

// MakerFee returns the configured maker fee percentage.
func (s *SimExchange) MakerFee() float64 { return s.makerFee }

// TakerFee returns the configured taker fee percentage.
func (s *SimExchange) TakerFee() float64 { return s.takerFee }

// GetProducts returns the configured product list.
func (s *SimExchange) GetProducts(ctx context.Context) ([]types.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

// GetQuote returns a quote derived from the last processed trade.
func (s *SimExchange) GetQuote(ctx context.Context, productID string) (*types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPrice == 0 {
		return nil, fmt.Errorf("sim: no trades processed yet for %s", productID)
	}
	return &types.Quote{Bid: s.lastPrice, Ask: s.lastPrice}, nil
}

// GetBalance returns the simulated account balance including holds from
// resting orders.
func (s *SimExchange) GetBalance(ctx context.Context, asset, currency string) (*types.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balance
	return &b, nil
}

// Buy places a simulated buy order.
func (s *SimExchange) Buy(ctx context.Context, order *types.Order) (*types.Order, error) {
	return s.place(order, types.SideBuy)
}

// Sell places a simulated sell order.
func (s *SimExchange) Sell(ctx context.Context, order *types.Order) (*types.Order, error) {
	return s.place(order, types.SideSell)
}

func (s *SimExchange) place(order *types.Order, side types.Side) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := *order
	o.Side = side
	o.OrderID = ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
	o.Status = types.OrderStatusOpen
	o.Time = s.marketTime()
	o.RemainingSize = o.Size
	o.FilledSize = 0

	if side == types.SideBuy {
		required := o.Price * o.Size
		if s.balance.Currency-s.balance.CurrencyHold < required {
			o.Status = types.OrderStatusRejected
			o.RejectReason = types.RejectReasonBalance
			return &o, nil
		}
		s.balance.CurrencyHold += required
	} else {
		if s.balance.Asset-s.balance.AssetHold < o.Size {
			o.Status = types.OrderStatusRejected
			o.RejectReason = types.RejectReasonBalance
			return &o, nil
		}
		s.balance.AssetHold += o.Size
	}

	s.orders[o.OrderID] = &o

	if o.OrderType == types.OrderTypeTaker && s.lastPrice > 0 {
		s.fill(&o, s.lastPrice, s.marketTime())
	}

	result := o
	return &result, nil
}

// GetOrder returns the current state of a simulated order.
func (s *SimExchange) GetOrder(ctx context.Context, orderID, productID string) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("sim: order %s not found", orderID)
	}
	result := *o
	return &result, nil
}

// CancelOrder cancels a resting order and releases its hold. Canceling an
// already-done order is a no-op, matching the race a real exchange allows.
func (s *SimExchange) CancelOrder(ctx context.Context, orderID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("sim: order %s not found", orderID)
	}
	if o.Status != types.OrderStatusOpen {
		return nil
	}
	o.Status = types.OrderStatusCanceled
	s.releaseHold(o)
	return nil
}

// ProcessTrade feeds one market tick through the book, filling any resting
// order the trade price crosses.
func (s *SimExchange) ProcessTrade(trade types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice = trade.Price
	s.lastTime = trade.Time

	for _, o := range s.orders {
		if o.Status != types.OrderStatusOpen {
			continue
		}
		if o.Side == types.SideBuy && trade.Price <= o.Price {
			s.fill(o, o.Price, trade.Time)
		} else if o.Side == types.SideSell && trade.Price >= o.Price {
			s.fill(o, o.Price, trade.Time)
		}
	}
}

// fill completes an order at price; callers hold s.mu.
func (s *SimExchange) fill(o *types.Order, price float64, at time.Time) {
	s.releaseHold(o)

	feePct := s.makerFee
	if o.OrderType == types.OrderTypeTaker {
		feePct = s.takerFee
	}
	if o.Side == types.SideBuy {
		cost := price * o.Size
		s.balance.Currency -= cost + cost*feePct/100
		s.balance.Asset += o.Size
	} else {
		proceeds := price * o.Size
		s.balance.Asset -= o.Size
		s.balance.Currency += proceeds - proceeds*feePct/100
	}

	o.Status = types.OrderStatusDone
	o.Price = price
	o.FilledSize = o.Size
	o.RemainingSize = 0
	o.DoneAt = at
}

// releaseHold frees the funds held for a resting order; callers hold s.mu.
func (s *SimExchange) releaseHold(o *types.Order) {
	if o.Side == types.SideBuy {
		s.balance.CurrencyHold -= o.Price * o.Size
		if s.balance.CurrencyHold < 0 {
			s.balance.CurrencyHold = 0
		}
	} else {
		s.balance.AssetHold -= o.Size
		if s.balance.AssetHold < 0 {
			s.balance.AssetHold = 0
		}
	}
}

// marketTime returns the timestamp fills and placements carry: market time
// when ticks have been processed, wall clock otherwise.
func (s *SimExchange) marketTime() time.Time {
	if !s.lastTime.IsZero() {
		return s.lastTime
	}
	return s.now()
}
