package engine

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for the engine so timer-driven paths (order polls,
// settlement waits, quarantine windows) can be tested against virtual time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) ClockTimer
}

// ClockTimer is a cancellable pending timer.
type ClockTimer interface {
	Stop() bool
}

// NewRealClock returns a Clock backed by the system clock.
func NewRealClock() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) ClockTimer {
	return time.AfterFunc(d, fn)
}

// FakeClock is a manually advanced Clock. Sim mode drives it from trade
// timestamps; tests drive it explicitly. Timers fire synchronously inside
// Advance, in due order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	nextID int
}

type fakeTimer struct {
	clock   *FakeClock
	id      int
	at      time.Time
	fn      func()
	stopped bool
}

// NewFakeClock creates a fake clock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current virtual time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers fn to run once virtual time reaches now+d.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) ClockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{clock: c, id: c.nextID, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves virtual time forward, firing due timers in order.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves virtual time to target, firing due timers in order. A
// no-op if target is not after the current time.
func (c *FakeClock) AdvanceTo(target time.Time) {
	for {
		c.mu.Lock()
		if !target.After(c.now) {
			c.mu.Unlock()
			return
		}
		var due *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.at.After(target) {
				continue
			}
			if due == nil || t.at.Before(due.at) {
				due = t
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		due.stopped = true
		if due.at.After(c.now) {
			c.now = due.at
		}
		c.compact()
		fn := due.fn
		c.mu.Unlock()
		fn()
	}
}

// compact drops stopped timers; callers hold c.mu.
func (c *FakeClock) compact() {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.Slice(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
}
