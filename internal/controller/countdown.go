package controller

import (
	"sync/atomic"
	"time"
)

// Countdown runs fire once when its duration elapses unless stopped first.
type Countdown struct {
	deadline time.Time
	timer    *time.Timer
	done     atomic.Bool
}

// StartCountdown schedules fire after d. A non-positive d fires immediately
// on a separate goroutine.
func StartCountdown(d time.Duration, fire func()) *Countdown {
	c := &Countdown{deadline: time.Now().Add(d)}
	if d < 0 {
		d = 0
	}
	c.timer = time.AfterFunc(d, func() {
		if c.done.CompareAndSwap(false, true) {
			fire()
		}
	})
	return c
}

// Remaining returns the time left, never negative.
func (c *Countdown) Remaining() time.Duration {
	if c == nil {
		return 0
	}
	left := time.Until(c.deadline)
	if left < 0 {
		return 0
	}
	return left
}

// Stop prevents fire from running if it has not started. It never blocks.
func (c *Countdown) Stop() {
	if c == nil {
		return
	}
	c.timer.Stop()
	c.done.Store(true)
}
