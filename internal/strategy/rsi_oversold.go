package strategy

import (
	"fmt"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/internal/engine"
	"github.com/quangdm-dev/zentrade/internal/indicators"
)

// rsiOversold buys when RSI recovers from below the oversold threshold and
// sells when it falls back from above the overbought threshold. Crossings
// are detected between consecutive period closes, so at most one signal
// fires per period.
type rsiOversold struct {
	periods    int
	oversold   float64
	overbought float64

	wasOversold   bool
	wasOverbought bool
}

func newRSIOversold(cfg *config.Config) engine.Strategy {
	return &rsiOversold{
		periods:    cfg.Engine.RSIPeriods,
		oversold:   cfg.Strategy.RSIOversold,
		overbought: cfg.Strategy.RSIOverbought,
	}
}

func (r *rsiOversold) Name() string { return "rsi_oversold" }

func (r *rsiOversold) Calculate(s *engine.State) {
	indicators.RSI(s.Period, s.Lookback, r.periods)
}

func (r *rsiOversold) OnPeriod(s *engine.State) error {
	if !s.Period.HasRSI {
		return nil
	}
	rsi := s.Period.RSI

	if r.wasOversold && rsi > r.oversold {
		s.Signal = engine.SignalBuy
	} else if r.wasOverbought && rsi < r.overbought {
		s.Signal = engine.SignalSell
	}

	r.wasOversold = rsi < r.oversold
	r.wasOverbought = rsi > r.overbought
	return nil
}

func (r *rsiOversold) OnReport(s *engine.State) []string {
	if !s.Period.HasRSI {
		return []string{"rsi -"}
	}
	return []string{fmt.Sprintf("rsi %.2f", s.Period.RSI)}
}
