// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// Fake returns a FakeClock reading initial until advanced.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a Clock whose time only moves on Advance. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&waiter{deadline: c.now.Add(d), channel: channel})
	return channel
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &waiter{deadline: c.now.Add(d), interval: d, channel: make(chan time.Time, 1)}
	c.addLocked(w)
	return &Ticker{C: w.channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		w.stopped = true
		c.waiters = slices.DeleteFunc(c.waiters, func(other *waiter) bool { return other == w })
	}}
}

func (c *FakeClock) addLocked(w *waiter) {
	c.waiters = append(c.waiters, w)
	c.changed.Broadcast()
}

// Advance moves time forward by d, firing every waiter whose deadline
// is reached in deadline order. Tickers spanning several intervals
// fire once per interval; ticks that find the channel full are dropped
// like time.Ticker does.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for {
		slices.SortStableFunc(c.waiters, func(a, b *waiter) int { return a.deadline.Compare(b.deadline) })
		if len(c.waiters) == 0 || c.waiters[0].deadline.After(c.now) {
			return
		}
		w := c.waiters[0]
		select {
		case w.channel <- w.deadline:
		default:
		}
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			continue
		}
		c.waiters = c.waiters[1:]
	}
}

// WaitForWaiters blocks until at least n timers or tickers are pending.
func (c *FakeClock) WaitForWaiters(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.changed.Wait()
	}
}

// Pending reports how many timers and tickers are registered.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
