package m500

import "encoding/binary"

// USB identifiers of the Pettersson M500 bat microphone.
const (
	VendorID  = 0x287D
	ProductID = 0x0146
)

const (
	// SampleRate is the fixed capture rate of the M500.
	SampleRate = 500000
	// bufferSize is the device side transfer size announced in every command.
	bufferSize = 0x4000
	// FrameSize is the length of one command frame.
	FrameSize = 32
)

// Opcode selects the command carried by a frame.
type Opcode byte

const (
	OpStart    Opcode = 0x01
	OpLEDFlash Opcode = 0x02
	OpLEDOn    Opcode = 0x03
	OpStop     Opcode = 0x04
)

func (op Opcode) String() string {
	switch op {
	case OpStart:
		return "start"
	case OpLEDFlash:
		return "led_flash"
	case OpLEDOn:
		return "led_on"
	case OpStop:
		return "stop"
	default:
		return "unknown"
	}
}

var signature = [6]byte{'B', 'a', 't', 'M', 'i', 'c'}

// Frame builds the command frame for op.
//
// Layout: signature(6) opcode(1) rate(4 LE) size(4 LE) filter(4) stereo(1)
// trigger(1) infinite(1) padding(10). LED commands set the infinite flag.
func Frame(op Opcode) []byte {
	b := make([]byte, FrameSize)
	copy(b[0:6], signature[:])
	b[6] = byte(op)
	binary.LittleEndian.PutUint32(b[7:11], SampleRate)
	binary.LittleEndian.PutUint32(b[11:15], bufferSize)
	// filter, stereo and trigger stay zero
	if op == OpLEDFlash || op == OpLEDOn {
		b[21] = 0xff
	}
	return b
}
