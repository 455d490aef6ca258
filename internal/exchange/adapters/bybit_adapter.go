package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/quangdm-dev/zentrade/internal/exchange/bybit"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// Default spot fees used until the real rates have been fetched.
const (
	defaultMakerFeePct = 0.1
	defaultTakerFeePct = 0.1
)

// BybitAdapter maps the Bybit v5 spot API onto the engine's Exchange
// contract.
type BybitAdapter struct {
	client   *bybit.Client
	makerPct float64
	takerPct float64
}

// NewBybitAdapter creates an adapter and loads the fee schedule for the
// given symbol. A fee fetch failure falls back to default rates rather
// than failing construction.
func NewBybitAdapter(ctx context.Context, cfg bybit.Config, symbol string) (*BybitAdapter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("bybit API credentials are required")
	}
	a := &BybitAdapter{
		client:   bybit.NewClient(cfg),
		makerPct: defaultMakerFeePct,
		takerPct: defaultTakerFeePct,
	}
	if fee, err := a.client.GetFeeRate(ctx, symbol); err == nil {
		a.makerPct = fee.MakerPct
		a.takerPct = fee.TakerPct
	}
	return a, nil
}

func (a *BybitAdapter) Name() string { return "bybit" }

func (a *BybitAdapter) MakerFee() float64 { return a.makerPct }
func (a *BybitAdapter) TakerFee() float64 { return a.takerPct }

func (a *BybitAdapter) GetProducts(ctx context.Context) ([]types.Product, error) {
	instruments, err := a.client.GetInstruments(ctx, "")
	if err != nil {
		return nil, err
	}
	products := make([]types.Product, 0, len(instruments))
	for _, ins := range instruments {
		if ins.Status != "Trading" {
			continue
		}
		products = append(products, types.Product{
			ID:             ins.BaseCoin + "-" + ins.QuoteCoin,
			Asset:          ins.BaseCoin,
			Currency:       ins.QuoteCoin,
			MinSize:        ins.MinOrderQty,
			MaxSize:        ins.MaxOrderQty,
			MinTotal:       ins.MinNotional,
			AssetIncrement: ins.QtyStep,
			PriceIncrement: ins.TickSize,
		})
	}
	return products, nil
}

func (a *BybitAdapter) GetQuote(ctx context.Context, productID string) (*types.Quote, error) {
	ticker, err := a.client.GetTicker(ctx, toSymbol(productID))
	if err != nil {
		return nil, err
	}
	return &types.Quote{Bid: ticker.Bid, Ask: ticker.Ask}, nil
}

func (a *BybitAdapter) GetBalance(ctx context.Context, asset, currency string) (*types.Balance, error) {
	balances, err := a.client.GetBalances(ctx, asset, currency)
	if err != nil {
		return nil, err
	}
	b := &types.Balance{Asset: 0, Currency: 0}
	if cb, ok := balances[asset]; ok {
		b.Asset = cb.Free
		b.AssetHold = cb.Locked
	}
	if cb, ok := balances[currency]; ok {
		b.Currency = cb.Free
		b.CurrencyHold = cb.Locked
	}
	return b, nil
}

func (a *BybitAdapter) Buy(ctx context.Context, order *types.Order) (*types.Order, error) {
	return a.place(ctx, order, "Buy")
}

func (a *BybitAdapter) Sell(ctx context.Context, order *types.Order) (*types.Order, error) {
	return a.place(ctx, order, "Sell")
}

func (a *BybitAdapter) place(ctx context.Context, order *types.Order, side string) (*types.Order, error) {
	placed := *order
	placed.OrderLinkID = ulid.Make().String()
	placed.Status = types.OrderStatusOpen

	orderID, err := a.client.PlaceOrder(ctx, bybit.PlaceOrderParams{
		Symbol:      toSymbol(order.ProductID),
		Side:        side,
		Qty:         order.Size,
		Price:       order.Price,
		PostOnly:    order.PostOnly,
		Market:      order.OrderType == types.OrderTypeTaker,
		OrderLinkID: placed.OrderLinkID,
	})
	if err != nil {
		if reason := rejectReasonFromError(err); reason != "" {
			placed.Status = types.OrderStatusRejected
			placed.RejectReason = reason
			return &placed, nil
		}
		return nil, err
	}
	placed.OrderID = orderID
	return &placed, nil
}

func (a *BybitAdapter) GetOrder(ctx context.Context, orderID, productID string) (*types.Order, error) {
	o, err := a.client.GetOrder(ctx, toSymbol(productID), orderID)
	if err != nil {
		return nil, err
	}

	out := &types.Order{
		OrderID:     o.OrderID,
		OrderLinkID: o.OrderLinkID,
		ProductID:   productID,
		Price:       o.Price,
		Size:        o.Qty,
		FilledSize:  o.CumExecQty,
		Time:        o.UpdatedTime,
	}
	if o.Side == "Sell" {
		out.Side = types.SideSell
	}
	if o.AvgPrice > 0 {
		out.Price = o.AvgPrice
	}

	switch o.Status {
	case bybit.OrderStatusFilled:
		out.Status = types.OrderStatusDone
		out.DoneAt = o.UpdatedTime
	case bybit.OrderStatusCancelled:
		if strings.Contains(o.CancelType, "PostOnly") || strings.Contains(o.RejectReason, "PostOnly") {
			out.Status = types.OrderStatusRejected
			out.RejectReason = types.RejectReasonPostOnly
		} else {
			out.Status = types.OrderStatusCanceled
		}
	case bybit.OrderStatusRejected:
		out.Status = types.OrderStatusRejected
		out.RejectReason = rejectReasonFromMessage(o.RejectReason)
	default:
		out.Status = types.OrderStatusOpen
	}
	return out, nil
}

func (a *BybitAdapter) CancelOrder(ctx context.Context, orderID, productID string) error {
	err := a.client.CancelOrder(ctx, toSymbol(productID), orderID)
	if err != nil {
		// Cancel racing a fill; the order poll will pick up the done state.
		if apiErr, ok := err.(*bybit.APIError); ok && apiErr.Code == 110001 {
			return nil
		}
		return err
	}
	return nil
}

// toSymbol converts the engine's "BTC-USDT" form to Bybit's "BTCUSDT".
func toSymbol(productID string) string {
	return strings.ReplaceAll(productID, "-", "")
}

func rejectReasonFromError(err error) string {
	apiErr, ok := err.(*bybit.APIError)
	if !ok {
		return ""
	}
	switch apiErr.Code {
	case 170131, 170033, 12131: // insufficient balance family
		return types.RejectReasonBalance
	case 170134, 170140, 170136: // price/qty precision and bounds
		return types.RejectReasonPrice
	}
	return rejectReasonFromMessage(apiErr.Message)
}

func rejectReasonFromMessage(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "post only") || strings.Contains(lower, "postonly"):
		return types.RejectReasonPostOnly
	case strings.Contains(lower, "balance"):
		return types.RejectReasonBalance
	case strings.Contains(lower, "price"):
		return types.RejectReasonPrice
	}
	return msg
}
