package testutil

import "sync"

// DeterministicClock stamps notification seq values in tests.
//
// It differs from engine.Clock in two ways: it can be reset so a scenario
// replayed on the same clock stamps identical seqs, and it remembers every
// value it handed out so a test can check that nothing was skipped.
type DeterministicClock struct {
	mu     sync.Mutex
	seq    int64
	issued []int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next implements engine.SeqSource.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.issued = append(c.issued, c.seq)
	return c.seq
}

// Current returns the last issued seq, or 0.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Issued returns every seq handed out since the last Reset, in order.
func (c *DeterministicClock) Issued() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.issued...)
}

// Reset rewinds the clock to 0.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
	c.issued = nil
}
