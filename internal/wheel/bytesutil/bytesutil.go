// Package bytesutil holds the small byte/bit helpers every vendor framer
// needs: endianness reads, Kingsong's per-word byte swap, XOR and
// byte-sum checksums, and the Veteran CRC-16.
package bytesutil

import "github.com/sigurn/crc16"

// U16BE reads a big-endian uint16 at offset i.
func U16BE(b []byte, i int) uint16 {
	return uint16(b[i])<<8 | uint16(b[i+1])
}

// U16LE reads a little-endian uint16 at offset i.
func U16LE(b []byte, i int) uint16 {
	return uint16(b[i]) | uint16(b[i+1])<<8
}

// I16BE reads a big-endian signed int16 at offset i.
func I16BE(b []byte, i int) int16 {
	return int16(U16BE(b, i))
}

// I16LE reads a little-endian signed int16 at offset i.
func I16LE(b []byte, i int) int16 {
	return int16(U16LE(b, i))
}

// U32BE reads a big-endian uint32 at offset i.
func U32BE(b []byte, i int) uint32 {
	return uint32(b[i])<<24 | uint32(b[i+1])<<16 | uint32(b[i+2])<<8 | uint32(b[i+3])
}

// I32BE reads a big-endian signed int32 at offset i.
func I32BE(b []byte, i int) int32 {
	return int32(U32BE(b, i))
}

// WordSwap reverses every adjacent byte pair within b, in place, returning
// b for convenience. Kingsong stores 16-bit fields big-endian "after" a
// per-word byte swap: the decoder must undo the swap before reading.
//
// len(b) is expected to be even; a trailing odd byte is left untouched.
func WordSwap(b []byte) []byte {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return b
}

// WordSwapped returns a word-swapped copy of b, leaving b untouched.
func WordSwapped(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return WordSwap(out)
}

// XORChecksum returns the XOR of every byte in b.
func XORChecksum(b []byte) byte {
	var c byte
	for _, v := range b {
		c ^= v
	}
	return c
}

// SumLow8 returns the low byte of the arithmetic sum of every byte in b,
// used by the Gotway frame check, which sums rather than XORs.
func SumLow8(b []byte) byte {
	var s byte
	for _, v := range b {
		s += v
	}
	return s
}

// PutU16BEInto writes v as big-endian at offset i in b.
func PutU16BEInto(b []byte, i int, v uint16) {
	b[i] = byte(v >> 8)
	b[i+1] = byte(v)
}

// PutU32BEInto writes v as big-endian at offset i in b.
func PutU32BEInto(b []byte, i int, v uint32) {
	b[i] = byte(v >> 24)
	b[i+1] = byte(v >> 16)
	b[i+2] = byte(v >> 8)
	b[i+3] = byte(v)
}

var veteranCRCTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// VeteranCRC16 computes the Veteran frame's trailing CRC-16/MODBUS over b.
func VeteranCRC16(b []byte) uint16 {
	return crc16.Checksum(b, veteranCRCTable)
}
