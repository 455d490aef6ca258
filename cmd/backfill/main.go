package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// Downloads Bybit kline history over the public REST API and expands each
// candle into synthetic ticks (open, low, high, close) in the trade JSON
// format the sim mode replays.

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

type tradeRecord struct {
	TradeID string  `json:"trade_id"`
	TimeMs  int64   `json:"time"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Side    string  `json:"side"`
}

func main() {
	var (
		symbol    = flag.String("symbol", "BTCUSDT", "Trading symbol (e.g. BTCUSDT)")
		interval  = flag.String("interval", "1", "Kline interval in minutes (1, 3, 5, 15, 30, 60)")
		category  = flag.String("category", "spot", "Market category (spot, linear)")
		startDate = flag.String("start", "", "Start date (YYYY-MM-DD)")
		endDate   = flag.String("end", "", "End date (YYYY-MM-DD), defaults to now")
		output    = flag.String("output", "", "Output file path (default data/<symbol>_<interval>m.json)")
		testnet   = flag.Bool("testnet", false, "Use the testnet API")
		limit     = flag.Int("limit", 1000, "Klines per request (max 1000)")
	)
	flag.Parse()

	if *startDate == "" {
		log.Fatal("Please specify a start date with -start (YYYY-MM-DD)")
	}
	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	end := time.Now()
	if *endDate != "" {
		end, err = time.Parse("2006-01-02", *endDate)
		if err != nil {
			log.Fatalf("Invalid end date: %v", err)
		}
		end = end.Add(24 * time.Hour)
	}

	baseURL := "https://api.bybit.com"
	if *testnet {
		baseURL = "https://api-testnet.bybit.com"
	}

	path := *output
	if path == "" {
		path = filepath.Join("data", fmt.Sprintf("%s_%sm.json", *symbol, *interval))
	}

	fmt.Printf("Downloading %s %s klines (%sm) from %s to %s\n",
		*category, *symbol, *interval, start.Format("2006-01-02"), end.Format("2006-01-02"))

	trades, err := download(baseURL, *category, *symbol, *interval, start, end, *limit)
	if err != nil {
		log.Fatalf("Download failed: %v", err)
	}
	if len(trades) == 0 {
		log.Fatal("No data returned for the requested range")
	}

	if err := writeTrades(path, trades); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	fmt.Printf("Wrote %d ticks to %s\n", len(trades), path)
}

func download(baseURL, category, symbol, interval string, start, end time.Time, limit int) ([]tradeRecord, error) {
	intervalMin, err := strconv.Atoi(interval)
	if err != nil {
		return nil, fmt.Errorf("interval must be minutes for tick expansion, got %q", interval)
	}

	var trades []tradeRecord
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()

	for cursor < endMs {
		url := fmt.Sprintf("%s/v5/market/kline?category=%s&symbol=%s&interval=%s&start=%d&end=%d&limit=%d",
			baseURL, category, symbol, interval, cursor, endMs, limit)

		klines, err := fetchKlines(url)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}

		// The API returns newest first.
		sort.Slice(klines, func(i, j int) bool { return klines[i].startMs < klines[j].startMs })

		for _, k := range klines {
			trades = append(trades, expandKline(k, int64(intervalMin)*60_000)...)
		}
		next := klines[len(klines)-1].startMs + int64(intervalMin)*60_000
		if next <= cursor {
			break
		}
		cursor = next

		// Public rate limit headroom.
		time.Sleep(120 * time.Millisecond)
	}
	return trades, nil
}

type kline struct {
	startMs int64
	open    float64
	high    float64
	low     float64
	close   float64
	volume  float64
}

func fetchKlines(url string) ([]kline, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed bybitResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", parsed.RetMsg, parsed.RetCode)
	}

	klines := make([]kline, 0, len(parsed.Result.List))
	for _, row := range parsed.Result.List {
		if len(row) < 6 {
			continue
		}
		startMs, _ := strconv.ParseInt(row[0], 10, 64)
		k := kline{
			startMs: startMs,
			open:    parseFloat(row[1]),
			high:    parseFloat(row[2]),
			low:     parseFloat(row[3]),
			close:   parseFloat(row[4]),
			volume:  parseFloat(row[5]),
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// expandKline turns one candle into four ticks spread across the candle's
// span. Down candles visit the high before the low, up candles the reverse,
// so intra-candle stops see the adverse extreme first.
func expandKline(k kline, spanMs int64) []tradeRecord {
	quarter := spanMs / 4
	size := k.volume / 4

	side := "buy"
	prices := []float64{k.open, k.low, k.high, k.close}
	if k.close < k.open {
		side = "sell"
		prices = []float64{k.open, k.high, k.low, k.close}
	}

	out := make([]tradeRecord, 0, 4)
	for i, p := range prices {
		out = append(out, tradeRecord{
			TradeID: fmt.Sprintf("%d-%d", k.startMs, i),
			TimeMs:  k.startMs + int64(i)*quarter,
			Price:   p,
			Size:    size,
			Side:    side,
		})
	}
	return out
}

func writeTrades(path string, trades []tradeRecord) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(trades, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
