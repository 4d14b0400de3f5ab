package mockapi

import (
	"sync/atomic"
	"time"
)

// Clock hands out strictly increasing timestamps so updated_at always moves
// forward, even for mutations within the same nanosecond.
type Clock struct {
	now  func() time.Time
	last atomic.Int64
}

// NewClock creates a Clock over now, or time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns a time later than every previous result.
func (c *Clock) Next() time.Time {
	for {
		now := c.now().UnixNano()
		last := c.last.Load()
		if now <= last {
			now = last + 1
		}
		if c.last.CompareAndSwap(last, now) {
			return time.Unix(0, now).UTC()
		}
	}
}
