package exchange

import (
	"context"

	"github.com/quangdm-dev/zentrade/pkg/types"
)

// Exchange is the uniform contract the engine drives. Implementations wrap
// one venue's REST/WebSocket client; the engine never sees wire formats.
//
// Buy/Sell return the exchange's view of the placed order. A rejection is
// not an error: the returned order carries StatusRejected and a
// RejectReason the engine maps to its recoverable/fatal taxonomy.
type Exchange interface {
	Name() string

	GetProducts(ctx context.Context) ([]types.Product, error)
	GetQuote(ctx context.Context, productID string) (*types.Quote, error)
	GetBalance(ctx context.Context, asset, currency string) (*types.Balance, error)

	Buy(ctx context.Context, order *types.Order) (*types.Order, error)
	Sell(ctx context.Context, order *types.Order) (*types.Order, error)
	GetOrder(ctx context.Context, orderID, productID string) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID, productID string) error

	// Fee percentages. Taker is typically a positive cost; maker may be a
	// negative rebate.
	MakerFee() float64
	TakerFee() float64
}

// TradeProcessor is implemented by exchanges that fill resting orders from
// the engine's own tick stream (paper and sim modes). The engine feeds each
// processed tick back so limit orders fill when the market crosses them.
type TradeProcessor interface {
	ProcessTrade(trade types.Trade)
}
