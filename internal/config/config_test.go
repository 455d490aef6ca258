package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "minimal.json", `{"selector": "bybit.BTC-USDT"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModePaper, cfg.Mode)
	assert.Equal(t, "trend_ema", cfg.Strategy.Name)
	assert.Equal(t, 26, cfg.Strategy.TrendEMA)
	assert.Equal(t, "1m", cfg.Engine.PeriodLength)
	assert.Equal(t, 99.0, cfg.Engine.BuyPct)
	assert.Equal(t, 99.0, cfg.Engine.SellPct)
	assert.Equal(t, "maker", cfg.Engine.OrderType)
	assert.Equal(t, 30000, cfg.Engine.OrderAdjustTimeMs)
	assert.Equal(t, 14, cfg.Engine.RSIPeriods)
	assert.Equal(t, 250, cfg.Engine.KeepLookbackPeriods)
	assert.Equal(t, 1000.0, cfg.Engine.CurrencyCapital)
	assert.Equal(t, "bybit", cfg.Exchange.Name)
}

func TestLoad_BareNameResolvesInConfigsDir(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.Mkdir("configs", 0755))
	require.NoError(t, os.WriteFile(filepath.Join("configs", "btc.json"),
		[]byte(`{"selector": "bybit.BTC-USDT"}`), 0644))

	cfg, err := Load("btc")
	require.NoError(t, err)
	assert.Equal(t, "bybit.BTC-USDT", cfg.Selector)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"empty selector", func(cfg *Config) { cfg.Selector = "" }},
		{"malformed selector", func(cfg *Config) { cfg.Selector = "bybit" }},
		{"bad mode", func(cfg *Config) { cfg.Mode = "backtest" }},
		{"buy pct over 100", func(cfg *Config) { cfg.Engine.BuyPct = 150 }},
		{"zero sell pct", func(cfg *Config) { cfg.Engine.SellPct = -1 }},
		{"bad order type", func(cfg *Config) { cfg.Engine.OrderType = "ioc" }},
		{"bad period", func(cfg *Config) { cfg.Engine.PeriodLength = "fast" }},
		{"profit stop without pct", func(cfg *Config) {
			cfg.Engine.ProfitStopEnablePct = 5
			cfg.Engine.ProfitStopPct = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Selector: "bybit.BTC-USDT"}
			cfg.SetDefaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseSelector(t *testing.T) {
	cfg := &Config{Selector: "bybit.BTC-USDT"}
	ex, product, err := cfg.ParseSelector()
	require.NoError(t, err)
	assert.Equal(t, "bybit", ex)
	assert.Equal(t, "BTC-USDT", product)
	assert.Equal(t, "BTC", cfg.Asset())
	assert.Equal(t, "USDT", cfg.Currency())
}

func TestPeriodLength(t *testing.T) {
	cfg := &Config{Selector: "sim.BTC-USDT", Engine: EngineOptions{PeriodLength: "30s"}}
	d, err := cfg.PeriodLength()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	cfg.Engine.PeriodLength = "-1m"
	_, err = cfg.PeriodLength()
	assert.Error(t, err)
}

func TestEngineOptions_DurationAccessors(t *testing.T) {
	e := EngineOptions{
		OrderAdjustTimeMs:   30000,
		OrderPollTimeMs:     5000,
		WaitForSettlementMs: 5000,
		QuarantineTimeMin:   60,
		IntervalTradeMin:    10,
		RunForMin:           120,
	}
	assert.Equal(t, 30*time.Second, e.OrderAdjustTime())
	assert.Equal(t, 5*time.Second, e.OrderPollTime())
	assert.Equal(t, 5*time.Second, e.WaitForSettlement())
	assert.Equal(t, time.Hour, e.QuarantineTime())
	assert.Equal(t, 10*time.Minute, e.IntervalTrade())
	assert.Equal(t, 2*time.Hour, e.RunFor())
}

func TestApplyEnvCredentials(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "key-from-env")
	t.Setenv("BYBIT_API_SECRET", "secret-from-env")

	cfg := &Config{
		Selector: "bybit.BTC-USDT",
		Mode:     ModeLive,
		Exchange: ExchangeConfig{
			Name:  "bybit",
			Bybit: &BybitConfig{APIKey: "${BYBIT_API_KEY}", APISecret: ""},
		},
	}
	require.NoError(t, cfg.ApplyEnvCredentials())
	assert.Equal(t, "key-from-env", cfg.Exchange.Bybit.APIKey)
	assert.Equal(t, "secret-from-env", cfg.Exchange.Bybit.APISecret)
}

func TestApplyEnvCredentials_LiveRequiresKeys(t *testing.T) {
	t.Setenv("BYBIT_API_KEY", "")
	t.Setenv("BYBIT_API_SECRET", "")

	cfg := &Config{
		Selector: "bybit.BTC-USDT",
		Mode:     ModeLive,
		Exchange: ExchangeConfig{Name: "bybit"},
	}
	assert.Error(t, cfg.ApplyEnvCredentials())

	cfg.Mode = ModePaper
	assert.NoError(t, cfg.ApplyEnvCredentials())
}

func TestLoad_CurrencyCapitalDefaultSkippedInLive(t *testing.T) {
	path := writeConfig(t, "live.json", `{"selector": "bybit.BTC-USDT", "mode": "live"}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Engine.CurrencyCapital)
}
