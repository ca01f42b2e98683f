package processor

import "github.com/tphakala/batrec/internal/audiocore"

// Window holds the most recent blocks, evicting the oldest beyond capacity.
type Window struct {
	blocks []*audiocore.AudioBlock
	head   int
	size   int
}

// NewWindow creates a window of capacity blocks.
func NewWindow(capacity int) *Window {
	return &Window{blocks: make([]*audiocore.AudioBlock, max(capacity, 1))}
}

// Push appends b, dropping the oldest block when full.
func (w *Window) Push(b *audiocore.AudioBlock) {
	tail := (w.head + w.size) % len(w.blocks)
	w.blocks[tail] = b
	if w.size < len(w.blocks) {
		w.size++
		return
	}
	w.head = (w.head + 1) % len(w.blocks)
}

func (w *Window) Len() int { return w.size }

func (w *Window) Cap() int { return len(w.blocks) }

func (w *Window) Full() bool { return w.size == len(w.blocks) }

// Blocks returns the held blocks oldest first.
func (w *Window) Blocks() []*audiocore.AudioBlock {
	out := make([]*audiocore.AudioBlock, w.size)
	for i := range out {
		out[i] = w.blocks[(w.head+i)%len(w.blocks)]
	}
	return out
}

// Clear empties the window.
func (w *Window) Clear() {
	clear(w.blocks)
	w.head, w.size = 0, 0
}
