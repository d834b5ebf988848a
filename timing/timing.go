// Package timing defines how instrumentation reads the current time.
package timing

import (
	"sync"
	"time"
)

// TimeInSec is a point in time measured in seconds since a clock started.
type TimeInSec float64

// TimeTeller can tell the current time.
type TimeTeller interface {
	CurrentTime() TimeInSec
}

// WallClock tells the wall time elapsed since it was created.
type WallClock struct {
	start time.Time
	now   func() time.Time
}

// NewWallClock creates a WallClock that starts now.
func NewWallClock() *WallClock {
	return &WallClock{
		start: time.Now(),
		now:   time.Now,
	}
}

// CurrentTime returns the seconds elapsed since the clock was created.
func (c *WallClock) CurrentTime() TimeInSec {
	return TimeInSec(c.now().Sub(c.start).Seconds())
}

// ManualClock is a TimeTeller whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now TimeInSec
}

// CurrentTime returns the time last set.
func (c *ManualClock) CurrentTime() TimeInSec {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t TimeInSec) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d TimeInSec) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
