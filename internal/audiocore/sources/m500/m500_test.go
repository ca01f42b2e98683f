package m500

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTransport struct {
	mu     sync.Mutex
	chunks [][]byte
	frames [][]byte
	resets int
	closed bool
	// idle makes Read return zero bytes instead of blocking once chunks run out.
	idle bool
}

func (f *fakeTransport) Write(_ context.Context, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Read(ctx context.Context, buf []byte) (int, error) {
	f.mu.Lock()
	if len(f.chunks) > 0 {
		n := copy(buf, f.chunks[0])
		f.chunks = f.chunks[1:]
		f.mu.Unlock()
		return n, nil
	}
	idle := f.idle
	f.mu.Unlock()
	if idle {
		return 0, nil
	}
	<-ctx.Done()
	return 0, nil
}

func (f *fakeTransport) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) opcodes() []Opcode {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]Opcode, 0, len(f.frames))
	for _, fr := range f.frames {
		ops = append(ops, Opcode(fr[6]))
	}
	return ops
}

// ramp returns n bytes of little-endian samples counting up from start.
func ramp(start, samples int) []byte {
	b := make([]byte, samples*bytesPerSample)
	for i := range samples {
		binary.LittleEndian.PutUint16(b[i*bytesPerSample:], uint16(int16(start+i)))
	}
	return b
}

func TestFrameLayout(t *testing.T) {
	t.Parallel()

	start := Frame(OpStart)
	require.Len(t, start, FrameSize)
	assert.Equal(t, []byte("BatMic"), start[:6])
	assert.Equal(t, byte(0x01), start[6])
	assert.Equal(t, []byte{0x20, 0xa1, 0x07, 0x00}, start[7:11])
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0x00}, start[11:15])
	assert.Equal(t, byte(0x00), start[21])
	assert.Equal(t, make([]byte, 10), start[22:])

	tests := []struct {
		op       Opcode
		infinite byte
	}{
		{OpStart, 0x00},
		{OpLEDFlash, 0xff},
		{OpLEDOn, 0xff},
		{OpStop, 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			f := Frame(tt.op)
			assert.Equal(t, byte(tt.op), f[6])
			assert.Equal(t, tt.infinite, f[21])
		})
	}
}

func TestSourceSlicesChunksIntoBlocks(t *testing.T) {
	const chunkSamples = readSize / bytesPerSample
	ft := &fakeTransport{}
	for i := range 8 {
		ft.chunks = append(ft.chunks, ramp(i*chunkSamples, chunkSamples))
	}

	src := NewSource(Config{Open: func() (Transport, error) { return ft, nil }})
	out := make(chan audiocore.Item, 4)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	var blocks []*audiocore.AudioBlock
	for range 2 {
		select {
		case it := <-out:
			require.Equal(t, audiocore.ItemData, it.Kind)
			blocks = append(blocks, it.Block)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for block")
		}
	}
	cancel()
	require.NoError(t, <-done)

	half := SampleRate / audiocore.BlocksPerSecond
	for i, b := range blocks {
		require.Len(t, b.Samples, half)
		assert.Equal(t, SampleRate, b.SampleRate)
		assert.Equal(t, int16(i*half), b.Samples[0])
		assert.Equal(t, int16(i*half+half-1), b.Samples[half-1])
	}
	assert.True(t, blocks[1].DeviceTime.After(blocks[0].DeviceTime))
	assert.Empty(t, out, "leftover bytes must stay in the staging buffer")

	assert.Equal(t, []Opcode{OpStart, OpLEDOn, OpStop}, ft.opcodes())
	assert.Equal(t, 1, ft.resets)
	assert.True(t, ft.closed)
}

func TestSourceGivesUpAfterConsecutiveEmptyReads(t *testing.T) {
	ft := &fakeTransport{idle: true}
	src := NewSource(Config{
		Open:      func() (Transport, error) { return ft, nil },
		MaxFaults: 3,
	})

	err := src.Run(t.Context(), make(chan audiocore.Item, 1))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHardware))
	assert.Equal(t, 1, ft.resets)
	assert.True(t, ft.closed)
}

func TestSourceOpenFailure(t *testing.T) {
	t.Parallel()

	want := errors.New(ErrNotFound).Category(errors.CategoryHardware).Build()
	src := NewSource(Config{Open: func() (Transport, error) { return nil, want }})

	err := src.Run(t.Context(), make(chan audiocore.Item, 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeSamples(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int16{0, -1, 32767, -32768}, decodeSamples([]byte{0, 0, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80}))
}
