package bybit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Order statuses the engine distinguishes. Bybit has more; everything else
// maps onto these in the adapter.
const (
	OrderStatusNew             = "New"
	OrderStatusPartiallyFilled = "PartiallyFilled"
	OrderStatusFilled          = "Filled"
	OrderStatusCancelled       = "Cancelled"
	OrderStatusRejected        = "Rejected"
)

// Order is a spot order as the v5 API reports it.
type Order struct {
	OrderID      string
	OrderLinkID  string
	Symbol       string
	Side         string
	Status       string
	CancelType   string
	RejectReason string
	Price        float64
	Qty          float64
	CumExecQty   float64
	AvgPrice     float64
	CreatedTime  time.Time
	UpdatedTime  time.Time
}

// PlaceOrderParams holds the parameters for a spot limit order. Qty and
// price are already rounded to the instrument's steps by the caller.
type PlaceOrderParams struct {
	Symbol      string
	Side        string // "Buy" or "Sell"
	Qty         float64
	Price       float64
	PostOnly    bool
	Market      bool
	OrderLinkID string
}

// PlaceOrder places a spot order and returns its exchange ID.
func (c *Client) PlaceOrder(ctx context.Context, p PlaceOrderParams) (string, error) {
	orderType := "Limit"
	tif := "GTC"
	if p.Market {
		orderType = "Market"
		tif = "IOC"
	} else if p.PostOnly {
		tif = "PostOnly"
	}

	apiParams := map[string]interface{}{
		"category":    "spot",
		"symbol":      p.Symbol,
		"side":        p.Side,
		"orderType":   orderType,
		"qty":         strconv.FormatFloat(p.Qty, 'f', -1, 64),
		"timeInForce": tif,
	}
	if !p.Market {
		apiParams["price"] = strconv.FormatFloat(p.Price, 'f', -1, 64)
	} else {
		// Spot market orders quote qty in base coin.
		apiParams["marketUnit"] = "baseCoin"
	}
	if p.OrderLinkID != "" {
		apiParams["orderLinkId"] = p.OrderLinkID
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(apiParams).PlaceOrder(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to place order: %w", err)
	}

	var orderResult struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := parseResult(result, &orderResult); err != nil {
		return "", err
	}
	return orderResult.OrderID, nil
}

// GetOrder fetches an order by ID, checking open orders first and falling
// back to recent history once the order has left the book.
func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (*Order, error) {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	if order, err := findOrder(result, orderID); err == nil && order != nil {
		return order, nil
	}

	result, err = c.httpClient.NewUtaBybitServiceWithParams(params).GetOrderHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	order, err := findOrder(result, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	return order, nil
}

// CancelOrder cancels an open spot order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  orderID,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	var cancelResult struct {
		OrderID string `json:"orderId"`
	}
	return parseResult(result, &cancelResult)
}

func findOrder(response interface{}, orderID string) (*Order, error) {
	var listResult struct {
		List []struct {
			OrderID      string `json:"orderId"`
			OrderLinkID  string `json:"orderLinkId"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			OrderStatus  string `json:"orderStatus"`
			CancelType   string `json:"cancelType"`
			RejectReason string `json:"rejectReason"`
			Price        string `json:"price"`
			Qty          string `json:"qty"`
			CumExecQty   string `json:"cumExecQty"`
			AvgPrice     string `json:"avgPrice"`
			CreatedTime  string `json:"createdTime"`
			UpdatedTime  string `json:"updatedTime"`
		} `json:"list"`
	}
	if err := parseResult(response, &listResult); err != nil {
		return nil, err
	}

	for _, item := range listResult.List {
		if item.OrderID != orderID {
			continue
		}
		return &Order{
			OrderID:      item.OrderID,
			OrderLinkID:  item.OrderLinkID,
			Symbol:       item.Symbol,
			Side:         item.Side,
			Status:       item.OrderStatus,
			CancelType:   item.CancelType,
			RejectReason: item.RejectReason,
			Price:        parseFloat(item.Price),
			Qty:          parseFloat(item.Qty),
			CumExecQty:   parseFloat(item.CumExecQty),
			AvgPrice:     parseFloat(item.AvgPrice),
			CreatedTime:  parseMillis(item.CreatedTime),
			UpdatedTime:  parseMillis(item.UpdatedTime),
		}, nil
	}
	return nil, nil
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
