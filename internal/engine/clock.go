package engine

import "sync/atomic"

// Clock is the engine's logical clock. History rows are stamped with Next()
// and read back in that order, never by wall time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
