package audiocore

import "time"

// BlockClock assigns device timestamps from the sample count since stream start.
// It is used by one source goroutine and is not safe for concurrent use.
type BlockClock struct {
	latency time.Duration
	now     func() time.Time
	start   time.Time
	samples int64
	started bool
}

// NewBlockClock returns a clock that back-dates the stream start by latency.
// A nil now uses time.Now.
func NewBlockClock(latency time.Duration, now func() time.Time) *BlockClock {
	if now == nil {
		now = time.Now
	}
	return &BlockClock{latency: latency, now: now}
}

// Begin fixes the stream start at the first hardware read. Later calls are
// no-ops, so sources call it on every read.
func (c *BlockClock) Begin() {
	if !c.started {
		c.start = c.now().Add(-c.latency)
		c.started = true
	}
}

// Stamp records a block of n samples at rate and returns its device and wall time.
// The device time covers the stream up to and including this block. Without a
// preceding Begin the stream starts at the first Stamp.
func (c *BlockClock) Stamp(n, rate int) (deviceTime, wallTime time.Time) {
	c.Begin()
	wallTime = c.now()
	c.samples += int64(n)
	r := int64(rate)
	elapsed := time.Duration(c.samples/r)*time.Second + time.Duration(c.samples%r)*time.Second/time.Duration(r)
	deviceTime = c.start.Add(elapsed).Truncate(BlockDuration)
	return deviceTime, wallTime
}

// Start returns the stream start time, zero before Begin or the first Stamp.
func (c *BlockClock) Start() time.Time {
	return c.start
}
