package engine

import (
	"sync"
	"time"
)

// Scheduler manages cancellable delayed tasks keyed by name. Scheduling a
// key again replaces any pending task for that key, so each order side has
// at most one poll or settlement wait outstanding.
type Scheduler struct {
	clock  Clock
	mu     sync.Mutex
	timers map[string]ClockTimer
}

// NewScheduler creates a scheduler on the given clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]ClockTimer),
	}
}

// Schedule runs fn after d, replacing any pending task under the same key.
func (sc *Scheduler) Schedule(key string, d time.Duration, fn func()) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if t, ok := sc.timers[key]; ok {
		t.Stop()
	}
	var timer ClockTimer
	timer = sc.clock.AfterFunc(d, func() {
		sc.mu.Lock()
		if sc.timers[key] == timer {
			delete(sc.timers, key)
		}
		sc.mu.Unlock()
		fn()
	})
	sc.timers[key] = timer
}

// Cancel stops any pending task under key.
func (sc *Scheduler) Cancel(key string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if t, ok := sc.timers[key]; ok {
		t.Stop()
		delete(sc.timers, key)
	}
}

// CancelAll stops every pending task. Used on engine shutdown.
func (sc *Scheduler) CancelAll() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for key, t := range sc.timers {
		t.Stop()
		delete(sc.timers, key)
	}
}

// Pending reports whether a task is outstanding under key.
func (sc *Scheduler) Pending(key string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_, ok := sc.timers[key]
	return ok
}
