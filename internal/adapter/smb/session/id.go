package session

import "sync/atomic"

// IDGenerator hands out SMB2 session identifiers. Implementations must be
// safe for concurrent use and must never return 0, which is the SessionId of
// requests sent before a session exists.
type IDGenerator interface {
	Next() uint64
}

// Counter is the default IDGenerator: a process-wide atomic counter.
type Counter struct {
	next atomic.Uint64
}

// NewCounter returns a Counter whose first ID is start, or 1 when start is 0.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.next.Store(start)
	return c
}

// Next returns the next ID, skipping 0 when the counter wraps around.
func (c *Counter) Next() uint64 {
	for {
		id := c.next.Add(1) - 1
		if id != 0 {
			return id
		}
	}
}
