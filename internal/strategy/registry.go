package strategy

import (
	"fmt"
	"sort"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/internal/engine"
)

type factory func(cfg *config.Config) engine.Strategy

var registry = map[string]factory{
	"rsi_oversold": newRSIOversold,
	"trend_ema":    newTrendEMA,
	"noop":         newNoop,
}

// New looks up a strategy by name and constructs it from the config.
func New(name string, cfg *config.Config) (engine.Strategy, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return f(cfg), nil
}

// Names lists the registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
