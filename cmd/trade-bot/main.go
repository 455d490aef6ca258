package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/internal/engine"
	"github.com/quangdm-dev/zentrade/internal/exchange"
	"github.com/quangdm-dev/zentrade/internal/exchange/adapters"
	"github.com/quangdm-dev/zentrade/internal/exchange/bybit"
	"github.com/quangdm-dev/zentrade/internal/logger"
	"github.com/quangdm-dev/zentrade/internal/monitoring"
	"github.com/quangdm-dev/zentrade/internal/notifications"
	"github.com/quangdm-dev/zentrade/internal/strategy"
	"github.com/quangdm-dev/zentrade/pkg/reporting"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

func main() {
	var (
		configFile   = flag.String("config", "", "Configuration file (e.g., btc_1m_bybit.json)")
		envFile      = flag.String("env", ".env", "Environment file path")
		mode         = flag.String("mode", "", "Trading mode (live, paper, sim) - overrides config")
		strategyName = flag.String("strategy", "", "Strategy name - overrides config")
		duration     = flag.Int("duration", 0, "Run for this many minutes, then exit gracefully")
		tradesFile   = flag.String("trades", "", "Trade history JSON for sim mode")
		prerollFile  = flag.String("preroll", "", "Trade history JSON replayed as warm-up before trading starts")
		prevTrades   = flag.String("prev-trades", "", "Fill history JSON restored from a prior session")
		output       = flag.String("output", "", "Write the session report to this XLSX path on exit")
		metricsAddr  = flag.String("metrics-addr", "", "Serve /metrics and /health on this address (e.g. :9090)")
		quiet        = flag.Bool("quiet", false, "Suppress per-period status lines")
		debug        = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: could not load %s (%v), relying on environment variables", *envFile, err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Mode = config.Mode(*mode)
	}
	if *strategyName != "" {
		cfg.Strategy.Name = *strategyName
	}
	if *duration > 0 {
		cfg.Engine.RunForMin = *duration
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if cfg.Mode == config.ModeLive {
		if err := cfg.ApplyEnvCredentials(); err != nil {
			log.Fatalf("Failed to resolve exchange credentials: %v", err)
		}
	}
	if cfg.Mode == config.ModeSim && *tradesFile == "" {
		log.Fatal("Sim mode requires a trade history file via -trades")
	}

	fileLog, err := logger.NewLoggerWithDebug(cfg.Selector, cfg.Engine.PeriodLength, *debug)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fileLog.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var simTrades []types.Trade
	if cfg.Mode == config.ModeSim {
		simTrades, err = loadTrades(*tradesFile)
		if err != nil {
			log.Fatalf("Failed to load trades: %v", err)
		}
		if len(simTrades) == 0 {
			log.Fatal("Trade history file contains no trades")
		}
	}

	var clock engine.Clock
	if cfg.Mode == config.ModeSim {
		clock = engine.NewFakeClock(simTrades[0].Time)
	} else {
		clock = engine.NewRealClock()
	}

	ex, err := buildExchange(ctx, cfg, clock)
	if err != nil {
		log.Fatalf("Failed to set up exchange: %v", err)
	}

	strat, err := strategy.New(cfg.Strategy.Name, cfg)
	if err != nil {
		log.Fatalf("Failed to create strategy: %v", err)
	}

	var notifier engine.Notifier
	if cfg.Notifications != nil && cfg.Notifications.Enabled && cfg.Notifications.TelegramToken != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChat)
	}

	console := reporting.NewConsoleReporter(*quiet)
	console.PrintStartup(cfg.Selector, string(cfg.Mode), strat.Name(), cfg.Engine.PeriodLength, cfg.Engine.Deposit)

	eng, err := engine.New(ctx, cfg, engine.Options{
		Exchange: ex,
		Strategy: strat,
		Logger:   fileLog,
		Notifier: notifier,
		Clock:    clock,
		Sink:     console.ReportPeriod,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	// A restored fill history seeds the loss-protection and stop references,
	// so a restart does not trade as if it had never filled.
	if *prevTrades != "" {
		prev, err := loadPrevTrades(*prevTrades)
		if err != nil {
			log.Fatalf("Failed to load prior-session fills: %v", err)
		}
		eng.StateRef().MyPrevTrades = prev
		fileLog.Info("restored %d fills from prior session", len(prev))
	}

	health := monitoring.NewHealthChecker()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.Handler())
		mux.Handle("/health", health)
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fileLog.LogError("metrics server", err)
			}
		}()
	}

	eng.Start()

	// Warm-up history fills the lookback and indicator state without
	// trading, so the first live period starts with context.
	if *prerollFile != "" {
		history, err := loadTrades(*prerollFile)
		if err != nil {
			log.Fatalf("Failed to load preroll trades: %v", err)
		}
		eng.Update(history, true)
		fileLog.Info("prerolled %d trades", len(history))
	}

	switch cfg.Mode {
	case config.ModeSim:
		health.SetConnected(true)
		eng.Update(simTrades, false)
		eng.Stop()
	default:
		feed := exchange.NewTradeFeed(ctx, exchange.FeedConfig{
			Symbol:  cfg.Asset() + cfg.Currency(),
			Testnet: cfg.Exchange.Bybit != nil && cfg.Exchange.Bybit.Testnet,
			Sink:    eng,
			Logger:  fileLog,
			Health:  health,
		})
		feed.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\nShutting down...")
		feed.Stop()
		eng.Stop()
	}

	snap := eng.Snapshot()
	console.PrintSummary(snap)

	if *output != "" {
		if err := reporting.NewExcelReporter().WriteSessionXLSX(snap, *output); err != nil {
			log.Printf("Failed to write report: %v", err)
		} else {
			fmt.Printf("Report written to %s\n", *output)
		}
	}
}

// buildExchange wires the configured venue: a real Bybit adapter in live
// mode, the in-process simulated exchange otherwise.
func buildExchange(ctx context.Context, cfg *config.Config, clock engine.Clock) (exchange.Exchange, error) {
	_, productID, err := cfg.ParseSelector()
	if err != nil {
		return nil, err
	}

	if cfg.Mode == config.ModeLive {
		if cfg.Exchange.Bybit == nil {
			return nil, fmt.Errorf("bybit configuration is required in live mode")
		}
		return adapters.NewBybitAdapter(ctx, bybit.Config{
			APIKey:    cfg.Exchange.Bybit.APIKey,
			APISecret: cfg.Exchange.Bybit.APISecret,
			Testnet:   cfg.Exchange.Bybit.Testnet,
			Demo:      cfg.Exchange.Bybit.Demo,
		}, cfg.Asset()+cfg.Currency())
	}

	products := []types.Product{{
		ID:             productID,
		Asset:          cfg.Asset(),
		Currency:       cfg.Currency(),
		AssetIncrement: 1e-8,
		PriceIncrement: 1e-8,
	}}
	// Paper and sim trade against a default maker rebate / taker cost pair.
	return exchange.NewSimExchange(exchange.SimConfig{
		Products:        products,
		AssetCapital:    cfg.Engine.AssetCapital,
		CurrencyCapital: cfg.Engine.CurrencyCapital,
		MakerFee:        -0.02,
		TakerFee:        0.1,
		Now:             clock.Now,
	}), nil
}

type tradeRecord struct {
	TradeID string  `json:"trade_id"`
	TimeMs  int64   `json:"time"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Side    string  `json:"side"`
}

// loadTrades reads a JSON array of historical trades for sim replay.
func loadTrades(path string) ([]types.Trade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trades file: %w", err)
	}
	var records []tradeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse trades file: %w", err)
	}

	trades := make([]types.Trade, 0, len(records))
	for _, r := range records {
		side := types.SideBuy
		if r.Side == "sell" {
			side = types.SideSell
		}
		trades = append(trades, types.Trade{
			TradeID: r.TradeID,
			Time:    time.UnixMilli(r.TimeMs),
			Price:   r.Price,
			Size:    r.Size,
			Side:    side,
		})
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Time.Before(trades[j].Time) })
	return trades, nil
}

type fillRecord struct {
	OrderID string  `json:"order_id"`
	TimeMs  int64   `json:"time"`
	Side    string  `json:"side"`
	Size    float64 `json:"size"`
	Price   float64 `json:"price"`
	Fee     float64 `json:"fee"`
}

// loadPrevTrades reads a JSON array of fills from a prior session.
func loadPrevTrades(path string) ([]*types.MyTrade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fills file: %w", err)
	}
	var records []fillRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse fills file: %w", err)
	}

	fills := make([]*types.MyTrade, 0, len(records))
	for _, r := range records {
		side := types.SideBuy
		if r.Side == "sell" {
			side = types.SideSell
		}
		fills = append(fills, &types.MyTrade{
			OrderID: r.OrderID,
			Time:    time.UnixMilli(r.TimeMs),
			Type:    side,
			Size:    r.Size,
			Price:   r.Price,
			Fee:     r.Fee,
		})
	}
	sort.SliceStable(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })
	return fills, nil
}
