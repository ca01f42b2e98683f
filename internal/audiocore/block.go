package audiocore

import "time"

const (
	// BlockDuration is the length of one AudioBlock for every source.
	BlockDuration = 500 * time.Millisecond
	// BlocksPerSecond is the number of blocks per second of audio.
	BlocksPerSecond = int(time.Second / BlockDuration)
)

// AudioBlock is a time-stamped chunk of mono 16-bit PCM.
type AudioBlock struct {
	// DeviceTime is derived from the stream start and the number of samples
	// received, rounded down to 0.5 s. It names recordings.
	DeviceTime time.Time
	// WallTime is the host clock at receive and is only used for drift checks.
	WallTime   time.Time
	Samples    []int16
	SampleRate int
}

// Drift returns the absolute difference between host and device time.
func (b *AudioBlock) Drift() time.Duration {
	d := b.WallTime.Sub(b.DeviceTime)
	if d < 0 {
		return -d
	}
	return d
}

// Peak is the strongest frequency seen while a call was detected.
type Peak struct {
	FrequencyHz float64
	LevelDBFS   float64
}

// DetectionResult is the detector's verdict for one block.
type DetectionResult struct {
	CallPresent bool
	// Peak is nil when no frame reached the debounce count.
	Peak *Peak
}

// ItemKind tags a channel Item.
type ItemKind uint8

const (
	ItemData ItemKind = iota
	ItemFlush
	ItemTerminate
)

func (k ItemKind) String() string {
	switch k {
	case ItemData:
		return "data"
	case ItemFlush:
		return "flush"
	case ItemTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Item is the element type of both pipeline channels.
type Item struct {
	Kind  ItemKind
	Block *AudioBlock

	// NewFile marks the first block of a clip and carries Peak.
	NewFile bool
	// CloseFile marks the last block of a clip.
	CloseFile bool
	Peak      *Peak
}

// DataItem wraps a block for channel transport.
func DataItem(b *AudioBlock) Item {
	return Item{Kind: ItemData, Block: b}
}

// FlushItem returns a Flush control item.
func FlushItem() Item {
	return Item{Kind: ItemFlush}
}

// TerminateItem returns a Terminate control item.
func TerminateItem() Item {
	return Item{Kind: ItemTerminate}
}

// DrainData discards queued data items from in without blocking. It stops at
// the first control item and reports it; ok is false if none was found.
func DrainData(in <-chan Item) (control Item, dropped int, ok bool) {
	for {
		select {
		case it, open := <-in:
			if !open {
				return TerminateItem(), dropped, true
			}
			if it.Kind != ItemData {
				return it, dropped, true
			}
			dropped++
		default:
			return Item{}, dropped, false
		}
	}
}

// DrainUntilTerminate discards queued data and Flush items without blocking.
// terminated reports whether a Terminate was queued (and consumed).
func DrainUntilTerminate(in <-chan Item) (dropped int, terminated bool) {
	for {
		control, n, ok := DrainData(in)
		dropped += n
		if !ok {
			return dropped, false
		}
		if control.Kind == ItemTerminate {
			return dropped, true
		}
	}
}

// TrySend pushes it without blocking and reports whether it was queued.
func TrySend(out chan<- Item, it Item) bool {
	select {
	case out <- it:
		return true
	default:
		return false
	}
}
