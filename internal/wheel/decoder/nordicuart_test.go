package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

func TestNordicFramer_RoundTripsBuiltFrame(t *testing.T) {
	f := newNordicFramer()
	built := buildNordicFrame(0x00, 0x64, []byte{0x01, 0x02, 0x03})

	frames := f.Feed(built)
	if assert.Len(t, frames, 1) {
		assert.Equal(t, byte(0x64), frames[0][4])
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, frames[0][5:])
	}
}

func TestNordicFramer_SplitAcrossArbitraryChunkBoundaries(t *testing.T) {
	built := buildNordicFrame(0x00, 0x64, []byte{0xAA, 0xA5, 0x01}) // forces escaping
	f := newNordicFramer()

	var frames [][]byte
	for _, b := range built {
		frames = append(frames, f.Feed([]byte{b})...)
	}
	if assert.Len(t, frames, 1) {
		assert.Equal(t, []byte{0xAA, 0xA5, 0x01}, frames[0][5:])
	}
}

func TestNordicFramer_FlippedChecksumByteDropsFrame(t *testing.T) {
	built := buildNordicFrame(0x00, 0x64, []byte{0x01, 0x02})
	built[len(built)-1] ^= 0xFF

	f := newNordicFramer()
	assert.Empty(t, f.Feed(built))
}

func TestNordicFramer_EscapedByteDecodesLiterally(t *testing.T) {
	// Hand-built wire bytes, independent of buildNordicFrame: a one-byte
	// cmd payload of 0xAA, escaped as `A5 AA` per the literal (non-XOR)
	// escape rule. flags=0x00, len=1 (cmd only), cmd=escaped 0xAA.
	checksum := bytesutil.XORChecksum([]byte{0x00, 0x01, 0xAA})
	wire := []byte{0xAA, 0xAA, 0x00, 0x01, 0xA5, 0xAA, checksum}

	f := newNordicFramer()
	frames := f.Feed(wire)
	if assert.Len(t, frames, 1) {
		assert.Equal(t, byte(0xAA), frames[0][4], "escaped 0xAA must decode literally, not XORed")
	}
}

func TestNordicFramer_ResyncsAfterGarbagePrefix(t *testing.T) {
	built := buildNordicFrame(0x00, 0x64, []byte{0x01})
	garbage := append([]byte{0x00, 0x11, 0xAA, 0x22}, built...)

	f := newNordicFramer()
	frames := f.Feed(garbage)
	if assert.Len(t, frames, 1) {
		assert.Equal(t, byte(0x64), frames[0][4])
	}
}
