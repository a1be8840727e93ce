// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// CLOCK
// =============================================================================

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped the
	// timer, false if it already fired or was stopped.
	Stop() bool
}

// Clock schedules callbacks and reports the current time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// =============================================================================
// MANUAL CLOCK
// =============================================================================

// ManualClock is a simulated Clock. Time only moves when Advance is called,
// and due callbacks run synchronously on the caller's goroutine in deadline
// order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	when  time.Time
	seq   uint64
	fn    func()
	done  bool
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run once the simulated time reaches now+d.
func (c *ManualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	c.seq++
	t := &manualTimer{
		clock: c,
		when:  c.now.Add(d),
		seq:   c.seq,
		fn:    fn,
	}
	c.timers = append(c.timers, t)
	return t
}

// Stop cancels the timer.
func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	c.removeLocked(t)
	return true
}

// Advance moves the simulated time forward by d, firing every callback that
// becomes due, including callbacks scheduled by earlier callbacks within the
// same window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextLocked()
		if next == nil || next.when.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.when
		next.done = true
		c.removeLocked(next)
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of scheduled callbacks that have not fired.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline returns when the earliest pending callback is due.
func (c *ManualClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.nextLocked()
	if next == nil {
		return time.Time{}, false
	}
	return next.when, true
}

func (c *ManualClock) nextLocked() *manualTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].when.Equal(c.timers[j].when) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].when.Before(c.timers[j].when)
	})
	return c.timers[0]
}

func (c *ManualClock) removeLocked(t *manualTimer) {
	for i, pending := range c.timers {
		if pending == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
