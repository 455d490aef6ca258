package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quangdm-dev/zentrade/internal/logger"
	"github.com/quangdm-dev/zentrade/internal/monitoring"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// TradeSink consumes batches of ticks from a feed. Satisfied by the
// engine's Update method.
type TradeSink interface {
	Update(trades []types.Trade, preroll bool)
}

const (
	bybitSpotStreamURL    = "wss://stream.bybit.com/v5/public/spot"
	bybitTestnetStreamURL = "wss://stream-testnet.bybit.com/v5/public/spot"

	feedPingInterval   = 20 * time.Second
	feedReconnectDelay = 5 * time.Second
)

// TradeFeed maintains a WebSocket subscription to the public trade stream
// and forwards decoded ticks to the sink. It reconnects with a fixed delay
// on any read failure until the context is canceled.
type TradeFeed struct {
	url    string
	symbol string
	sink   TradeSink
	log    *logger.Logger
	health *monitoring.HealthChecker

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// FeedConfig configures a trade feed. Symbol is the exchange-native form,
// e.g. "BTCUSDT".
type FeedConfig struct {
	Symbol  string
	Testnet bool
	Sink    TradeSink
	Logger  *logger.Logger
	Health  *monitoring.HealthChecker // optional
}

func NewTradeFeed(ctx context.Context, cfg FeedConfig) *TradeFeed {
	url := bybitSpotStreamURL
	if cfg.Testnet {
		url = bybitTestnetStreamURL
	}
	fctx, cancel := context.WithCancel(ctx)
	return &TradeFeed{
		url:    url,
		symbol: cfg.Symbol,
		sink:   cfg.Sink,
		log:    cfg.Logger,
		health: cfg.Health,
		ctx:    fctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs the connect/read/reconnect loop in the background.
func (f *TradeFeed) Start() {
	go f.run()
}

// Stop cancels the feed and waits for the read loop to exit.
func (f *TradeFeed) Stop() {
	f.cancel()
	<-f.done
}

func (f *TradeFeed) run() {
	defer close(f.done)
	for {
		if f.ctx.Err() != nil {
			return
		}
		if err := f.connectAndRead(); err != nil {
			f.log.LogError("trade feed", err)
			monitoring.RecordError("feed")
		}
		f.setConnected(false)
		select {
		case <-f.ctx.Done():
			return
		case <-time.After(feedReconnectDelay):
		}
	}
}

func (f *TradeFeed) connectAndRead() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(f.ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to trade stream: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"publicTrade." + f.symbol},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	f.log.Info("subscribed to trade stream for %s", f.symbol)
	f.setConnected(true)

	stopPing := make(chan struct{})
	defer close(stopPing)
	go f.pingLoop(conn, stopPing)

	for {
		if f.ctx.Err() != nil {
			return nil
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}
		f.handleMessage(message)
	}
}

func (f *TradeFeed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			ping := map[string]string{"op": "ping"}
			if err := conn.WriteJSON(ping); err != nil {
				return
			}
		}
	}
}

type streamMessage struct {
	Topic string `json:"topic"`
	Data  []struct {
		Time    int64  `json:"T"`
		Symbol  string `json:"s"`
		Side    string `json:"S"`
		Size    string `json:"v"`
		Price   string `json:"p"`
		TradeID string `json:"i"`
	} `json:"data"`
}

func (f *TradeFeed) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if !strings.HasPrefix(msg.Topic, "publicTrade.") || len(msg.Data) == 0 {
		return
	}

	trades := make([]types.Trade, 0, len(msg.Data))
	for _, d := range msg.Data {
		price, err := strconv.ParseFloat(d.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(d.Size, 64)
		if err != nil {
			continue
		}
		side := types.SideBuy
		if strings.EqualFold(d.Side, "sell") {
			side = types.SideSell
		}
		trades = append(trades, types.Trade{
			TradeID: d.TradeID,
			Time:    time.UnixMilli(d.Time),
			Price:   price,
			Size:    size,
			Side:    side,
		})
	}
	if len(trades) == 0 {
		return
	}
	if f.health != nil {
		f.health.RecordTick(trades[len(trades)-1].Price)
	}
	f.sink.Update(trades, false)
}

func (f *TradeFeed) setConnected(connected bool) {
	if f.health != nil {
		f.health.SetConnected(connected)
	}
}
