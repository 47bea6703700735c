package engine

import "sync/atomic"

// SeqSource hands out strictly increasing sequence numbers.
// Implemented by Clock and testutil.DeterministicClock.
type SeqSource interface {
	Next() int64
}

// Clock is a monotonic logical clock for notification ordering.
//
// Every outward notification is stamped with a strictly increasing seq from
// this clock, so subscribers and golden traces can rely on order without
// wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
