package bytesutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestU16BE(t *testing.T) {
	assert.Equal(t, uint16(0x1234), U16BE([]byte{0x12, 0x34}, 0))
}

func TestU16LE(t *testing.T) {
	assert.Equal(t, uint16(0x3412), U16LE([]byte{0x12, 0x34}, 0))
}

func TestWordSwap(t *testing.T) {
	b := []byte{0x12, 0x34, 0x56, 0x78}
	WordSwap(b)
	assert.Equal(t, []byte{0x34, 0x12, 0x78, 0x56}, b)
}

func TestWordSwapped_LeavesOriginalUntouched(t *testing.T) {
	b := []byte{0x12, 0x34}
	out := WordSwapped(b)
	assert.Equal(t, []byte{0x34, 0x12}, out)
	assert.Equal(t, []byte{0x12, 0x34}, b)
}

func TestXORChecksum(t *testing.T) {
	assert.Equal(t, byte(0x00), XORChecksum([]byte{0xAA, 0xAA}))
	assert.Equal(t, byte(0x0F), XORChecksum([]byte{0xF0, 0xFF}))
}

func TestVeteranCRC16_Deterministic(t *testing.T) {
	a := VeteranCRC16([]byte{0xDC, 0x5A, 0x5C, 0x01, 0x02})
	b := VeteranCRC16([]byte{0xDC, 0x5A, 0x5C, 0x01, 0x02})
	assert.Equal(t, a, b)
	c := VeteranCRC16([]byte{0xDC, 0x5A, 0x5C, 0x01, 0x03})
	assert.NotEqual(t, a, c)
}
