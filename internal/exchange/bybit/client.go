package bybit

import (
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// Client wraps the Bybit v5 API client for spot trading.
type Client struct {
	httpClient *bybit_api.Client
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	Demo      bool // Demo trading environment
}

// NewClient creates a new Bybit client
func NewClient(config Config) *Client {
	var baseURL string
	if config.Demo {
		// Demo trading environment (paper trading)
		baseURL = "https://api-demo.bybit.com"
	} else if config.Testnet {
		baseURL = bybit_api.TESTNET
	} else {
		baseURL = bybit_api.MAINNET
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	return &Client{httpClient: httpClient}
}

// parseResult checks the API envelope and unmarshals the result payload
// into out.
func parseResult(response interface{}, out interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return &APIError{Code: serverResp.RetCode, Message: serverResp.RetMsg}
	}
	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(resultBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// APIError is a non-zero retCode from the Bybit API.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit API error: %s (code: %d)", e.Message, e.Code)
}
