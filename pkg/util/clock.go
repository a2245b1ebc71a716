package util

import (
	"sync"
	"time"
)

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// SimClock is the simulation's time source. It advances only when told to,
// one step per tick, and publishes each new timestamp to subscribers.
// Subscribers read opportunistically: a full channel drops the update
// rather than blocking the clock.
type SimClock struct {
	mu   sync.Mutex
	now  time.Time
	subs []chan time.Time
}

// NewSimClock starts a simulated clock at the given instant.
func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start}
}

// Now returns the current simulated time.
func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves simulated time forward by d and broadcasts the new value.
func (c *SimClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	subs := c.subs
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- now:
		default:
			// slow subscriber misses this update and keeps its last
		}
	}
	return now
}

// Subscribe returns a channel receiving future timestamps.
func (c *SimClock) Subscribe() <-chan time.Time {
	ch := make(chan time.Time, 4)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}
