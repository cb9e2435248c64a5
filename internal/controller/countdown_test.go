package controller

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownFiresOnce(t *testing.T) {
	var n atomic.Int32
	fired := make(chan struct{}, 2)
	c := StartCountdown(10*time.Millisecond, func() {
		n.Add(1)
		fired <- struct{}{}
	})
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not fire")
	}
	c.Stop()
	time.Sleep(20 * time.Millisecond)
	if got := n.Load(); got != 1 {
		t.Errorf("expected 1 fire, got %d", got)
	}
	if c.Remaining() != 0 {
		t.Errorf("expected no time remaining, got %v", c.Remaining())
	}
}

func TestCountdownStop(t *testing.T) {
	var n atomic.Int32
	c := StartCountdown(30*time.Millisecond, func() { n.Add(1) })
	if c.Remaining() <= 0 {
		t.Error("expected time remaining")
	}
	c.Stop()
	c.Stop()
	time.Sleep(60 * time.Millisecond)
	if n.Load() != 0 {
		t.Error("stopped countdown fired")
	}
}

func TestNilCountdown(t *testing.T) {
	var c *Countdown
	c.Stop()
	if c.Remaining() != 0 {
		t.Error("nil countdown should have no time remaining")
	}
}
