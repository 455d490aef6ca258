package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects how the engine talks to the exchange.
type Mode string

const (
	ModeLive  Mode = "live"  // real orders against the real exchange
	ModePaper Mode = "paper" // live data, simulated fills
	ModeSim   Mode = "sim"   // replayed data, simulated fills
)

// Config is the complete configuration for the trading engine.
type Config struct {
	// Selector identifies the exchange and product, e.g. "bybit.BTC-USDT".
	Selector string `json:"selector"`
	Mode     Mode   `json:"mode"`

	Strategy StrategyConfig `json:"strategy"`
	Engine   EngineOptions  `json:"engine"`
	Exchange ExchangeConfig `json:"exchange"`

	// Notification configuration (optional)
	Notifications *NotificationConfig `json:"notifications,omitempty"`
}

// StrategyConfig selects and parameterizes the strategy.
type StrategyConfig struct {
	Name string `json:"name"`

	// RSI thresholds used by the rsi_oversold strategy.
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`

	// EMA parameters used by the trend_ema strategy.
	TrendEMA        int     `json:"trend_ema"`
	NeutralRatePct  float64 `json:"neutral_rate_pct"`
	OversoldRSI     float64 `json:"oversold_rsi"`
	OversoldPeriods int     `json:"oversold_rsi_periods"`
}

// EngineOptions carries the trading options the engine core consumes.
// Optional percentage gates are pointers: nil disables the gate entirely.
type EngineOptions struct {
	PeriodLength string `json:"period_length"` // e.g. "1m", "30s", "1h"

	BuyPct         float64 `json:"buy_pct"`          // % of deposit to buy with
	SellPct        float64 `json:"sell_pct"`         // % of asset balance to sell with
	MarkdownBuyPct float64 `json:"markdown_buy_pct"` // % under bid to place buys
	MarkupSellPct  float64 `json:"markup_sell_pct"`  // % over ask to place sells

	OrderType   string `json:"order_type"` // maker or taker
	PostOnly    bool   `json:"post_only"`
	CancelAfter string `json:"cancel_after"` // exchange-side auto-cancel window
	UseFeeAsset bool   `json:"use_fee_asset"`

	OrderAdjustTimeMs   int `json:"order_adjust_time_ms"`
	OrderPollTimeMs     int `json:"order_poll_time_ms"`
	WaitForSettlementMs int `json:"wait_for_settlement_ms"`

	MaxBuyLossPct  *float64 `json:"max_buy_loss_pct,omitempty"`
	MaxSellLossPct *float64 `json:"max_sell_loss_pct,omitempty"`
	MaxSlippagePct *float64 `json:"max_slippage_pct,omitempty"`
	SellCancelPct  *float64 `json:"sell_cancel_pct,omitempty"`

	SellStopPct         float64 `json:"sell_stop_pct"`
	BuyStopPct          float64 `json:"buy_stop_pct"`
	ProfitStopEnablePct float64 `json:"profit_stop_enable_pct"`
	ProfitStopPct       float64 `json:"profit_stop_pct"`

	QuarantineTimeMin int `json:"quarantine_time_min"` // post-loss buy cooldown
	IntervalTradeMin  int `json:"interval_trade_min"`  // force-roll interval

	RSIPeriods          int `json:"rsi_periods"`
	KeepLookbackPeriods int `json:"keep_lookback_periods"`

	Deposit float64 `json:"deposit"` // capital ceiling in currency; 0 = full balance

	ExactBuyOrders  bool `json:"exact_buy_orders"`
	ExactSellOrders bool `json:"exact_sell_orders"`

	Reverse bool `json:"reverse"` // flip every signal at execution
	Manual  bool `json:"manual"`  // suppress strategy signals (stops still fire)
	Stats   bool `json:"stats"`   // print order stats on fills

	// Paper/sim starting balances.
	CurrencyCapital float64 `json:"currency_capital"`
	AssetCapital    float64 `json:"asset_capital"`

	RunForMin int `json:"run_for_min"` // exit gracefully after this many minutes; 0 = forever
}

// ExchangeConfig holds per-exchange connection settings.
type ExchangeConfig struct {
	Name  string       `json:"name"`
	Bybit *BybitConfig `json:"bybit,omitempty"`
}

// BybitConfig holds Bybit API credentials and environment selection.
type BybitConfig struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
	Demo      bool   `json:"demo"`
}

// NotificationConfig holds notification settings
type NotificationConfig struct {
	Enabled             bool   `json:"enabled"`
	OnlyCompletedTrades bool   `json:"only_completed_trades"`
	TelegramToken       string `json:"telegram_token,omitempty"`
	TelegramChat        string `json:"telegram_chat,omitempty"`
}

// Load loads configuration from file, applying defaults and validation.
func Load(configFile string) (*Config, error) {
	// Bare names resolve inside configs/
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// SetDefaults fills in defaults for unset options.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = ModePaper
	}
	if c.Strategy.Name == "" {
		c.Strategy.Name = "trend_ema"
	}
	if c.Strategy.RSIOversold == 0 {
		c.Strategy.RSIOversold = 30
	}
	if c.Strategy.RSIOverbought == 0 {
		c.Strategy.RSIOverbought = 70
	}
	if c.Strategy.TrendEMA == 0 {
		c.Strategy.TrendEMA = 26
	}

	e := &c.Engine
	if e.PeriodLength == "" {
		e.PeriodLength = "1m"
	}
	if e.BuyPct == 0 {
		e.BuyPct = 99
	}
	if e.SellPct == 0 {
		e.SellPct = 99
	}
	if e.OrderType == "" {
		e.OrderType = "maker"
	}
	if e.CancelAfter == "" {
		e.CancelAfter = "day"
	}
	if e.OrderAdjustTimeMs == 0 {
		e.OrderAdjustTimeMs = 30000
	}
	if e.OrderPollTimeMs == 0 {
		e.OrderPollTimeMs = 5000
	}
	if e.WaitForSettlementMs == 0 {
		e.WaitForSettlementMs = 5000
	}
	if e.RSIPeriods == 0 {
		e.RSIPeriods = 14
	}
	if e.KeepLookbackPeriods == 0 {
		e.KeepLookbackPeriods = 250
	}
	if e.IntervalTradeMin == 0 {
		e.IntervalTradeMin = 10
	}
	if e.CurrencyCapital == 0 && c.Mode != ModeLive {
		e.CurrencyCapital = 1000
	}
	if c.Exchange.Name == "" {
		c.Exchange.Name = exchangeFromSelector(c.Selector)
	}
}

// Validate checks the configuration for obvious operator mistakes.
func (c *Config) Validate() error {
	if c.Selector == "" {
		return fmt.Errorf("selector is required (e.g. \"bybit.BTC-USDT\")")
	}
	if _, _, err := c.ParseSelector(); err != nil {
		return err
	}
	if _, err := c.PeriodLength(); err != nil {
		return err
	}
	switch c.Mode {
	case ModeLive, ModePaper, ModeSim:
	default:
		return fmt.Errorf("mode must be live, paper or sim, got %q", c.Mode)
	}
	if c.Engine.BuyPct <= 0 || c.Engine.BuyPct > 100 {
		return fmt.Errorf("buy_pct must be in (0, 100], got %v", c.Engine.BuyPct)
	}
	if c.Engine.SellPct <= 0 || c.Engine.SellPct > 100 {
		return fmt.Errorf("sell_pct must be in (0, 100], got %v", c.Engine.SellPct)
	}
	if c.Engine.OrderType != "maker" && c.Engine.OrderType != "taker" {
		return fmt.Errorf("order_type must be maker or taker, got %q", c.Engine.OrderType)
	}
	if c.Engine.ProfitStopEnablePct > 0 && c.Engine.ProfitStopPct <= 0 {
		return fmt.Errorf("profit_stop_pct is required when profit_stop_enable_pct is set")
	}
	if c.Mode == ModeLive && c.Exchange.Name == "" {
		return fmt.Errorf("exchange name is required in live mode")
	}
	return nil
}

// ParseSelector splits the selector into exchange id and product id.
func (c *Config) ParseSelector() (exchangeID, productID string, err error) {
	parts := strings.SplitN(c.Selector, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("selector %q is not of the form exchange.ASSET-CURRENCY", c.Selector)
	}
	return parts[0], parts[1], nil
}

// Asset returns the asset half of the selector's product.
func (c *Config) Asset() string {
	_, product, err := c.ParseSelector()
	if err != nil {
		return ""
	}
	return strings.SplitN(product, "-", 2)[0]
}

// Currency returns the currency half of the selector's product.
func (c *Config) Currency() string {
	_, product, err := c.ParseSelector()
	if err != nil {
		return ""
	}
	parts := strings.SplitN(product, "-", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}

// PeriodLength parses the configured period length.
func (c *Config) PeriodLength() (time.Duration, error) {
	d, err := time.ParseDuration(c.Engine.PeriodLength)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid period_length %q", c.Engine.PeriodLength)
	}
	return d, nil
}

// OrderAdjustTime returns the interval after which a resting order is re-priced.
func (e *EngineOptions) OrderAdjustTime() time.Duration {
	return time.Duration(e.OrderAdjustTimeMs) * time.Millisecond
}

// OrderPollTime returns the order status poll interval.
func (e *EngineOptions) OrderPollTime() time.Duration {
	return time.Duration(e.OrderPollTimeMs) * time.Millisecond
}

// WaitForSettlement returns the wait applied when funds are on hold.
func (e *EngineOptions) WaitForSettlement() time.Duration {
	return time.Duration(e.WaitForSettlementMs) * time.Millisecond
}

// QuarantineTime returns the post-loss buy cooldown window.
func (e *EngineOptions) QuarantineTime() time.Duration {
	return time.Duration(e.QuarantineTimeMin) * time.Minute
}

// IntervalTrade returns the force-roll interval for quiet markets.
func (e *EngineOptions) IntervalTrade() time.Duration {
	return time.Duration(e.IntervalTradeMin) * time.Minute
}

// RunFor returns the configured run lifetime, or zero for no limit.
func (e *EngineOptions) RunFor() time.Duration {
	return time.Duration(e.RunForMin) * time.Minute
}

// ApplyEnvCredentials fills exchange credentials from the environment when
// the config file leaves them blank or templated.
func (c *Config) ApplyEnvCredentials() error {
	switch strings.ToLower(c.Exchange.Name) {
	case "bybit":
		if c.Exchange.Bybit == nil {
			c.Exchange.Bybit = &BybitConfig{}
		}
		b := c.Exchange.Bybit
		if b.APIKey == "" || b.APIKey == "${BYBIT_API_KEY}" {
			b.APIKey = os.Getenv("BYBIT_API_KEY")
		}
		if b.APISecret == "" || b.APISecret == "${BYBIT_API_SECRET}" {
			b.APISecret = os.Getenv("BYBIT_API_SECRET")
		}
		if c.Mode == ModeLive && (b.APIKey == "" || b.APISecret == "") {
			return fmt.Errorf("bybit API credentials are required in live mode (set BYBIT_API_KEY/BYBIT_API_SECRET)")
		}
	}
	return nil
}

func exchangeFromSelector(selector string) string {
	parts := strings.SplitN(selector, ".", 2)
	if len(parts) == 2 {
		return parts[0]
	}
	return ""
}
