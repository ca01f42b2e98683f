package audiocore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockClockStamps(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 22, 30, 0, 300_000_000, time.UTC)
	clock := NewBlockClock(100*time.Millisecond, func() time.Time { return now })

	dev, wall := clock.Stamp(192000, 384000)
	assert.Equal(t, now, wall)
	assert.Equal(t, now.Add(-100*time.Millisecond), clock.Start())
	// start 22:30:00.2 + 0.5 s = 22:30:00.7, floored to 22:30:00.5
	assert.Equal(t, time.Date(2024, 6, 1, 22, 30, 0, 500_000_000, time.UTC), dev)

	dev, _ = clock.Stamp(192000, 384000)
	assert.Equal(t, time.Date(2024, 6, 1, 22, 30, 1, 0, time.UTC), dev)
}

func TestBlockClockIgnoresWallClockJumps(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := NewBlockClock(0, func() time.Time { return now })

	clock.Stamp(250000, 500000)
	now = now.Add(time.Hour)
	dev, wall := clock.Stamp(250000, 500000)

	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 1, 0, time.UTC), dev)
	blk := &AudioBlock{DeviceTime: dev, WallTime: wall}
	assert.Equal(t, time.Hour-time.Second, blk.Drift())
}

func TestBlockClockStartsAtFirstRead(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 22, 30, 0, 300_000_000, time.UTC)
	clock := NewBlockClock(100*time.Millisecond, func() time.Time { return now })

	clock.Begin()
	// The first block is complete half a second after the first read.
	now = now.Add(500 * time.Millisecond)
	clock.Begin()
	dev, wall := clock.Stamp(192000, 384000)

	assert.Equal(t, time.Date(2024, 6, 1, 22, 30, 0, 200_000_000, time.UTC), clock.Start())
	assert.Equal(t, now, wall)
	// start 22:30:00.2 + 0.5 s = 22:30:00.7, floored to 22:30:00.5
	assert.Equal(t, time.Date(2024, 6, 1, 22, 30, 0, 500_000_000, time.UTC), dev)
}
