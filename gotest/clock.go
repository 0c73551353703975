package gotest

import (
	"sync"
	"time"
)

// ReplayClock is a time source driven by the timestamps of replayed events.
// Until the first timestamp is set it falls back to the wall clock.
type ReplayClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewReplayClock() *ReplayClock {
	return &ReplayClock{}
}

// Set moves the clock to t. Zero times are ignored.
func (c *ReplayClock) Set(t time.Time) {
	if t.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Now returns the replayed time
func (c *ReplayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		return time.Now()
	}
	return c.now
}
