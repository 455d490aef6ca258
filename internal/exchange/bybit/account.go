package bybit

import (
	"context"
	"fmt"
	"strings"
)

// CoinBalance is the wallet balance for a single coin in the unified
// account. Locked covers the portion committed to open orders.
type CoinBalance struct {
	Coin   string
	Wallet float64
	Free   float64
	Locked float64
}

// GetBalances retrieves unified-account balances for the given coins.
func (c *Client) GetBalances(ctx context.Context, coins ...string) (map[string]CoinBalance, error) {
	params := map[string]interface{}{
		"accountType": "UNIFIED",
	}
	if len(coins) > 0 {
		params["coin"] = strings.Join(coins, ",")
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	var balanceResult struct {
		List []struct {
			AccountType string `json:"accountType"`
			Coin        []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				Locked              string `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := parseResult(result, &balanceResult); err != nil {
		return nil, err
	}

	balances := make(map[string]CoinBalance)
	for _, account := range balanceResult.List {
		for _, coin := range account.Coin {
			wallet := parseFloat(coin.WalletBalance)
			locked := parseFloat(coin.Locked)
			balances[coin.Coin] = CoinBalance{
				Coin:   coin.Coin,
				Wallet: wallet,
				Free:   wallet - locked,
				Locked: locked,
			}
		}
	}
	return balances, nil
}

// FeeRate is the spot maker/taker fee for a symbol, in percent.
type FeeRate struct {
	Symbol   string
	MakerPct float64
	TakerPct float64
}

// GetFeeRate retrieves the trading fee rate for a symbol.
func (c *Client) GetFeeRate(ctx context.Context, symbol string) (*FeeRate, error) {
	params := map[string]interface{}{
		"category": "spot",
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetFeeRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee rate: %w", err)
	}

	var feeResult struct {
		List []struct {
			Symbol       string `json:"symbol"`
			MakerFeeRate string `json:"makerFeeRate"`
			TakerFeeRate string `json:"takerFeeRate"`
		} `json:"list"`
	}
	if err := parseResult(result, &feeResult); err != nil {
		return nil, err
	}
	if len(feeResult.List) == 0 {
		return nil, fmt.Errorf("no fee rate data for %s", symbol)
	}

	f := feeResult.List[0]
	// The API reports fractional rates; the engine works in percent.
	return &FeeRate{
		Symbol:   f.Symbol,
		MakerPct: parseFloat(f.MakerFeeRate) * 100,
		TakerPct: parseFloat(f.TakerFeeRate) * 100,
	}, nil
}
