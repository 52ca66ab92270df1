// Package clock provides the time source used to stamp index entries.
//
// All instants are int64 milliseconds since the Unix epoch. The async lane
// watermark uses the same unit, so ages can be computed by plain subtraction.
package clock

import (
	"sync"
	"time"
)

// Clock supplies monotonically non-decreasing wall-clock time.
type Clock interface {
	// Millis returns the current time in milliseconds since the Unix epoch.
	Millis() int64
}

// Real is the process wall clock. It never goes backwards even if the
// system clock is adjusted.
type Real struct {
	mu   sync.Mutex
	last int64
}

// NewReal returns a wall clock.
func NewReal() *Real {
	return &Real{}
}

// Millis implements Clock.
func (c *Real) Millis() int64 {
	now := time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}

// Virtual is a manually driven clock for tests.
type Virtual struct {
	mu  sync.Mutex
	now int64
}

// NewVirtual returns a virtual clock starting at the given instant.
func NewVirtual(start int64) *Virtual {
	return &Virtual{now: start}
}

// Millis implements Clock.
func (c *Virtual) Millis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// WaitUntil moves the clock forward to the given instant. Instants in the
// past are ignored.
func (c *Virtual) WaitUntil(millis int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if millis > c.now {
		c.now = millis
	}
}

// Advance moves the clock forward by d.
func (c *Virtual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d.Milliseconds()
}
