package malgo

import "encoding/binary"

// blockAccumulator turns variable-size S16LE callback buffers into fixed-size
// sample blocks. Leftover samples carry over to the next push.
type blockAccumulator struct {
	blockSamples int
	pending      []int16
	carry        []byte
}

func newBlockAccumulator(blockSamples int) *blockAccumulator {
	return &blockAccumulator{
		blockSamples: blockSamples,
		pending:      make([]int16, 0, blockSamples),
	}
}

// push appends raw little-endian samples and returns every completed block.
func (a *blockAccumulator) push(data []byte) [][]int16 {
	if len(a.carry) > 0 {
		data = append(a.carry, data...)
		a.carry = nil
	}

	var blocks [][]int16
	i := 0
	for ; i+1 < len(data); i += 2 {
		a.pending = append(a.pending, int16(binary.LittleEndian.Uint16(data[i:])))
		if len(a.pending) == a.blockSamples {
			blocks = append(blocks, a.pending)
			a.pending = make([]int16, 0, a.blockSamples)
		}
	}
	if i < len(data) {
		a.carry = []byte{data[i]}
	}
	return blocks
}

