package strategy

import (
	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/internal/engine"
	"github.com/quangdm-dev/zentrade/internal/indicators"
)

// noop never signals. Stops still fire and manual orders still work, so it
// serves as the manual-mode placeholder. RSI is kept up to date for the
// reporting sink.
type noop struct {
	rsiPeriods int
}

func newNoop(cfg *config.Config) engine.Strategy {
	return &noop{rsiPeriods: cfg.Engine.RSIPeriods}
}

func (n *noop) Name() string { return "noop" }

func (n *noop) Calculate(s *engine.State) {
	indicators.RSI(s.Period, s.Lookback, n.rsiPeriods)
}

func (n *noop) OnPeriod(s *engine.State) error { return nil }
