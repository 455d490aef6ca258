package strategy

import (
	"fmt"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/internal/engine"
	"github.com/quangdm-dev/zentrade/internal/indicators"
)

const (
	trendEMAKey     = "trend_ema"
	trendEMARateKey = "trend_ema_rate"
)

// trendEMA trades the direction of an EMA of period closes: a rate of
// change above the neutral band is an uptrend, below it a downtrend, and
// each trend flip emits one signal. An optional RSI gate buys early when
// the market goes deeply oversold inside a downtrend.
type trendEMA struct {
	length          int
	neutralRatePct  float64
	oversoldRSI     float64
	oversoldPeriods int

	trend    string
	oversold bool
}

func newTrendEMA(cfg *config.Config) engine.Strategy {
	t := &trendEMA{
		length:          cfg.Strategy.TrendEMA,
		neutralRatePct:  cfg.Strategy.NeutralRatePct,
		oversoldRSI:     cfg.Strategy.OversoldRSI,
		oversoldPeriods: cfg.Strategy.OversoldPeriods,
	}
	if t.oversoldPeriods == 0 {
		t.oversoldPeriods = cfg.Engine.RSIPeriods
	}
	return t
}

func (t *trendEMA) Name() string { return "trend_ema" }

func (t *trendEMA) Calculate(s *engine.State) {
	indicators.EMA(s.Period, s.Lookback, trendEMAKey, t.length)

	cur, ok := s.Period.EMA[trendEMAKey]
	if ok && len(s.Lookback) > 0 {
		if prev, ok := s.Lookback[0].EMA[trendEMAKey]; ok && prev != 0 {
			s.Period.EMA[trendEMARateKey] = (cur - prev) / prev * 100
		}
	}

	if t.oversoldRSI > 0 {
		indicators.RSI(s.Period, s.Lookback, t.oversoldPeriods)
		if !s.InPreroll && s.Period.HasRSI && s.Period.RSI <= t.oversoldRSI && !t.oversold {
			t.oversold = true
		}
	}
}

func (t *trendEMA) OnPeriod(s *engine.State) error {
	if t.oversold {
		t.oversold = false
		t.trend = "oversold"
		s.Signal = engine.SignalBuy
		return nil
	}

	rate, ok := s.Period.EMA[trendEMARateKey]
	if !ok {
		return nil
	}
	if rate > t.neutralRatePct {
		if t.trend != "up" {
			t.trend = "up"
			s.Signal = engine.SignalBuy
		}
	} else if rate < -t.neutralRatePct {
		if t.trend != "down" {
			t.trend = "down"
			s.Signal = engine.SignalSell
		}
	}
	return nil
}

func (t *trendEMA) OnReport(s *engine.State) []string {
	rate, ok := s.Period.EMA[trendEMARateKey]
	if !ok {
		return []string{"rate -"}
	}
	return []string{fmt.Sprintf("rate %.4f", rate)}
}
