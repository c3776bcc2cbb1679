// Package testutil provides deterministic helpers for tests and the
// scenario harness.
package testutil

import "sync"

// Clock is a thread-safe monotonic logical clock. The harness uses it to
// number trace events so scenario runs are reproducible regardless of
// wall time.
type Clock struct {
	mu  sync.Mutex
	seq int64
}

// NewClock creates a clock starting at 0; the first Next() returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next increments and returns the next sequence number.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset resets the clock to 0 for test reuse.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
