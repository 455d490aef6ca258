package bybit

import (
	"context"
	"fmt"
	"strconv"
)

// Ticker is the best bid/ask for a symbol.
type Ticker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	LastPrice float64
}

// GetTicker retrieves the spot ticker for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickers: %w", err)
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := parseResult(result, &tickerResult); err != nil {
		return nil, err
	}
	if len(tickerResult.List) == 0 {
		return nil, fmt.Errorf("no ticker data for %s", symbol)
	}

	t := tickerResult.List[0]
	return &Ticker{
		Symbol:    t.Symbol,
		Bid:       parseFloat(t.Bid1Price),
		Ask:       parseFloat(t.Ask1Price),
		LastPrice: parseFloat(t.LastPrice),
	}, nil
}

// Instrument is the subset of instrument metadata the order pipeline needs
// for sizing and pricing.
type Instrument struct {
	Symbol      string
	BaseCoin    string
	QuoteCoin   string
	Status      string
	MinOrderQty float64
	MaxOrderQty float64
	MinNotional float64
	QtyStep     float64
	TickSize    float64
}

// GetInstruments retrieves the spot instrument list. With a non-empty
// symbol only that instrument is requested.
func (c *Client) GetInstruments(ctx context.Context, symbol string) ([]Instrument, error) {
	params := map[string]interface{}{
		"category": "spot",
	}
	if symbol != "" {
		params["symbol"] = symbol
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instrument info: %w", err)
	}

	var instrumentResult struct {
		List []struct {
			Symbol      string `json:"symbol"`
			Status      string `json:"status"`
			BaseCoin    string `json:"baseCoin"`
			QuoteCoin   string `json:"quoteCoin"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				MinNotionalValue string `json:"minNotionalValue"`
				MaxOrderQty      string `json:"maxOrderQty"`
				MinOrderQty      string `json:"minOrderQty"`
				QtyStep          string `json:"qtyStep"`
				BasePrecision    string `json:"basePrecision"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := parseResult(result, &instrumentResult); err != nil {
		return nil, err
	}

	instruments := make([]Instrument, 0, len(instrumentResult.List))
	for _, item := range instrumentResult.List {
		qtyStep := parseFloat(item.LotSizeFilter.QtyStep)
		if qtyStep == 0 {
			qtyStep = parseFloat(item.LotSizeFilter.BasePrecision)
		}
		instruments = append(instruments, Instrument{
			Symbol:      item.Symbol,
			BaseCoin:    item.BaseCoin,
			QuoteCoin:   item.QuoteCoin,
			Status:      item.Status,
			MinOrderQty: parseFloat(item.LotSizeFilter.MinOrderQty),
			MaxOrderQty: parseFloat(item.LotSizeFilter.MaxOrderQty),
			MinNotional: parseFloat(item.LotSizeFilter.MinNotionalValue),
			QtyStep:     qtyStep,
			TickSize:    parseFloat(item.PriceFilter.TickSize),
		})
	}
	return instruments, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
