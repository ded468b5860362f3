package host

import "sync/atomic"

// Clock numbers the messages of one transaction in dispatch order.
//
// The journal keys messages by (transaction, seq), and MessageID hashes
// seq, so two identical messages in one transaction stay distinct.
// Depth-first dispatch makes the numbering deterministic: the same
// submission against the same state always yields the same sequence.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first position is 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next position.
func (c *Clock) Next() int {
	return int(c.seq.Add(1) - 1)
}

// Count returns how many positions have been handed out.
func (c *Clock) Count() int {
	return int(c.seq.Load())
}
