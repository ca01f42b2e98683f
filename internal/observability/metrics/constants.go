package metrics

import "time"

// Source labels used on capture counters.
const (
	// SourceCard is the sound card capture source.
	SourceCard = "card"
	// SourceM500 is the Pettersson M500 USB source.
	SourceM500 = "m500"
)

// Histogram bucket parameters.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketStart100ms is the starting bucket for clip length histograms.
	BucketStart100ms = 0.1

	BucketFactor2 = 2
	BucketCount8  = 8
	BucketCount10 = 10
)

// ShutdownTimeout is the timeout for graceful shutdown operations.
const ShutdownTimeout = 5 * time.Second
