package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quangdm-dev/zentrade/internal/config"
	"github.com/quangdm-dev/zentrade/internal/exchange"
	"github.com/quangdm-dev/zentrade/internal/logger"
	"github.com/quangdm-dev/zentrade/internal/monitoring"
	"github.com/quangdm-dev/zentrade/pkg/types"
)

// Strategy is the plug-in contract the engine drives. Calculate runs on
// every tick against the current period; OnPeriod runs at each period close
// and may set a pending signal on the state.
type Strategy interface {
	Name() string
	Calculate(s *State)
	OnPeriod(s *State) error
}

// Reporter is an optional strategy capability: extra progress columns for
// the reporting sink.
type Reporter interface {
	OnReport(s *State) []string
}

// Exiter is an optional strategy capability invoked on engine shutdown.
type Exiter interface {
	OnExit(s *State)
}

// OrderListener is an optional strategy capability invoked after each fill.
type OrderListener interface {
	OrderExecuted(s *State, side types.Side)
}

// Notifier receives push messages for operator-facing events. Satisfied by
// internal/notifications implementations.
type Notifier interface {
	PushMessage(title, message string) error
}

// SnapshotSink consumes engine state snapshots at each period close, e.g.
// for console rendering or external persistence.
type SnapshotSink func(Snapshot)

type queuedTrade struct {
	trade   types.Trade
	preroll bool
}

// Engine is the trade-execution core: a single dispatch goroutine consumes
// queued ticks and posted timer tasks, so every mutation of trading state
// is serialized. Network calls happen inline on that goroutine; while one
// is outstanding nothing else touches the same order's state.
type Engine struct {
	ctx      context.Context
	cfg      *config.Config
	opts     *config.EngineOptions
	exchange exchange.Exchange
	strategy Strategy
	log      *logger.Logger
	notifier Notifier
	clock    Clock
	sched    *Scheduler
	sink     SnapshotSink

	s *State

	period time.Duration

	tradeCh chan queuedTrade
	tasks   chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped sync.Once
	started bool
}

// Options configures engine construction beyond the config file.
type Options struct {
	Exchange exchange.Exchange
	Strategy Strategy
	Logger   *logger.Logger
	Notifier Notifier       // optional
	Clock    Clock          // optional; defaults to the system clock
	Sink     SnapshotSink   // optional
	Session  *types.Balance // unused placeholder for restored sessions
}

// New creates an engine for the configured selector. It resolves the
// product from the exchange's product list; a missing product is fatal.
func New(ctx context.Context, cfg *config.Config, o Options) (*Engine, error) {
	if o.Exchange == nil {
		return nil, fmt.Errorf("engine: exchange is required")
	}
	if o.Strategy == nil {
		return nil, fmt.Errorf("engine: strategy is required")
	}
	if o.Logger == nil {
		return nil, fmt.Errorf("engine: logger is required")
	}
	clock := o.Clock
	if clock == nil {
		clock = NewRealClock()
	}

	period, err := cfg.PeriodLength()
	if err != nil {
		return nil, err
	}
	_, productID, err := cfg.ParseSelector()
	if err != nil {
		return nil, err
	}

	products, err := o.Exchange.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to list products: %w", err)
	}
	var product *types.Product
	for i := range products {
		if products[i].Asset == cfg.Asset() && products[i].Currency == cfg.Currency() {
			product = &products[i]
			break
		}
	}
	if product == nil {
		return nil, fmt.Errorf("engine: could not find product %q on %s", productID, o.Exchange.Name())
	}

	e := &Engine{
		ctx:      ctx,
		cfg:      cfg,
		opts:     &cfg.Engine,
		exchange: o.Exchange,
		strategy: o.Strategy,
		log:      o.Logger,
		notifier: o.Notifier,
		clock:    clock,
		sched:    NewScheduler(clock),
		sink:     o.Sink,
		period:   period,
		tradeCh:  make(chan queuedTrade, 4096),
		tasks:    make(chan func(), 256),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		s: &State{
			Options:   &cfg.Engine,
			ProductID: productID,
			Asset:     cfg.Asset(),
			Currency:  cfg.Currency(),
			Product:   *product,
		},
	}
	return e, nil
}

// State exposes the trading state for strategies and tests. Outside the
// dispatch goroutine it must be treated as read-only via Snapshot.
func (e *Engine) StateRef() *State { return e.s }

// Start launches the dispatch loop and, when configured, the run-lifetime
// timer that triggers a graceful shutdown.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true

	if d := e.opts.RunFor(); d > 0 {
		e.sched.Schedule("engine:run_for", d, func() {
			e.log.Info("run duration elapsed, shutting down")
			go e.Stop()
		})
	}

	go e.run()
}

// Stop drains queued trades, runs strategy exit hooks, flushes the final
// snapshot, and tears down timers. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopped.Do(func() {
		close(e.stopCh)
	})
	<-e.doneCh
}

// Update enqueues a batch of ticks. The batch is sorted ascending by time
// before individual enqueue, then processed strictly one at a time in
// order. Used for both live feeds and preroll history.
func (e *Engine) Update(trades []types.Trade, preroll bool) {
	sorted := make([]types.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	for _, t := range sorted {
		select {
		case e.tradeCh <- queuedTrade{trade: t, preroll: preroll}:
		case <-e.stopCh:
			return
		}
	}
}

// post hands a task to the dispatch loop. Timer callbacks use this so state
// mutation stays on the single goroutine.
func (e *Engine) post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.stopCh:
	}
}

func (e *Engine) run() {
	defer close(e.doneCh)
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case qt := <-e.tradeCh:
			e.onTrade(qt.trade, qt.preroll)
		case <-e.stopCh:
			e.drain()
			e.exit()
			return
		}
	}
}

// drain processes whatever ticks are already queued so the final report
// reflects everything received before shutdown.
func (e *Engine) drain() {
	for {
		select {
		case qt := <-e.tradeCh:
			e.onTrade(qt.trade, qt.preroll)
		default:
			return
		}
	}
}

func (e *Engine) exit() {
	e.sched.CancelAll()
	if ex, ok := e.strategy.(Exiter); ok {
		ex.OnExit(e.s)
	}
	e.report()
}

// onTrade is the single entry point for every tick. Late ticks (older than
// the current period's start) and duplicate trade IDs within the current
// period are dropped silently.
func (e *Engine) onTrade(trade types.Trade, preroll bool) {
	s := e.s

	if s.Period != nil && trade.Time.Before(s.Period.Time) {
		return
	}
	// Dedup only applies inside the current bucket; the set resets on roll.
	if s.Period != nil && trade.TradeID != "" && s.Period.Contains(trade.Time) {
		if _, seen := s.seenTradeIDs[trade.TradeID]; seen {
			return
		}
	}

	if e.cfg.Mode == config.ModeSim {
		if fc, ok := e.clock.(*FakeClock); ok {
			fc.AdvanceTo(trade.Time)
		}
	}

	day := trade.Time.Day()
	if s.lastDay != 0 && day != s.lastDay {
		s.DayCount++
	} else if s.DayCount == 0 {
		s.DayCount = 1
	}
	s.lastDay = day

	if s.Period == nil {
		e.initBuffer(trade)
	}
	s.InPreroll = preroll

	if s.lastPeriodCheck.IsZero() && !preroll {
		s.lastPeriodCheck = e.clock.Now()
	}

	boundary := trade.Time.After(s.Period.CloseTime)
	forceRoll := !preroll && e.cfg.Mode != config.ModeSim &&
		e.opts.IntervalTrade() > 0 &&
		e.clock.Now().Sub(s.lastPeriodCheck) >= e.opts.IntervalTrade()

	if boundary || forceRoll {
		s.lastPeriodCheck = e.clock.Now()
		if err := e.strategy.OnPeriod(s); err != nil {
			e.log.LogError("strategy period evaluation", err)
			monitoring.RecordError("strategy")
		}
		e.report()
		s.ActedOnStop = false
		if !preroll && !e.opts.Manual {
			e.executeStop(true)
			if s.Signal != SignalNone {
				e.runSignal(s.Signal)
			}
		}
		s.Signal = SignalNone
		if boundary {
			e.rollPeriod(trade)
		}
	}

	e.withOnPeriod(trade)
}

// withOnPeriod applies the tick to the current period and runs the per-tick
// strategy and stop evaluation.
func (e *Engine) withOnPeriod(trade types.Trade) {
	s := e.s
	e.updatePeriod(trade)

	if s.InPreroll {
		return
	}

	if e.cfg.Mode != config.ModeLive {
		if tp, ok := e.exchange.(exchange.TradeProcessor); ok {
			tp.ProcessTrade(trade)
		}
	}

	if e.opts.Manual {
		return
	}

	e.executeStop(false)
	if s.Signal != SignalNone {
		e.runSignal(s.Signal)
		s.Signal = SignalNone
	}
}

// runSignal executes a pending signal, logging risk-gate refusals as
// warnings and anything else as errors. The engine keeps running either
// way; only the attempt is abandoned.
func (e *Engine) runSignal(sig Signal) {
	if _, err := e.ExecuteSignal(sig); err != nil {
		if engErr, ok := err.(interface{ IsRiskGate() bool }); ok && engErr.IsRiskGate() {
			e.log.Warning("%v", err)
		} else {
			e.log.LogError(fmt.Sprintf("executing %s signal", sig), err)
			monitoring.RecordError("signal")
		}
	}
}

func (e *Engine) pushMessage(title, message string) {
	if e.notifier == nil {
		return
	}
	if e.cfg.Mode != config.ModeLive && e.cfg.Mode != config.ModePaper {
		return
	}
	if err := e.notifier.PushMessage(title, message); err != nil {
		e.log.LogError("push message", err)
	}
}

func (e *Engine) onlyCompletedTrades() bool {
	return e.cfg.Notifications != nil && e.cfg.Notifications.OnlyCompletedTrades
}

// report delivers a snapshot to the configured sink.
func (e *Engine) report() {
	if e.sink == nil {
		return
	}
	e.sink(e.buildSnapshot())
}
