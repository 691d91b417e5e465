package timeutil

import (
	"sort"
	"sync"
	"time"
)

var (
	_ Provider  = (*ManualClock)(nil)
	_ Scheduler = (*ManualClock)(nil)
)

// ManualClock is a Provider and Scheduler whose time only moves when Advance
// is called. Callbacks run synchronously on the goroutine calling Advance, in
// deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*manualTimer
}

type manualTimer struct {
	clock    *ManualClock
	id       uint64
	deadline time.Time
	fn       func()
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, timers: make(map[uint64]*manualTimer)}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &manualTimer{clock: c, id: c.seq, deadline: c.now.Add(d), fn: f}
	c.timers[t.id] = t
	return t
}

// Stop removes the timer if it has not fired yet.
func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, ok := t.clock.timers[t.id]; !ok {
		return false
	}
	delete(t.clock.timers, t.id)
	return true
}

// Pending returns the number of timers that have not fired or been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached. Timers scheduled by fired callbacks are honored if they also fall
// within the advanced window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.dueLocked(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		delete(c.timers, due.id)
		c.now = due.deadline
		c.mu.Unlock()

		due.fn()
	}
}

func (c *ManualClock) dueLocked(target time.Time) *manualTimer {
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.deadline.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].id < due[j].id
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due[0]
}
