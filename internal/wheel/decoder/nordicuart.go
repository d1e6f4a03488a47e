package decoder

import "github.com/eucdash/wheelcore/internal/wheel/bytesutil"

// nordicFrameState is the explicit state of the Nordic-UART-style framer
// used by the InMotion V2 decoder, modeled as an explicit enum rather
// than control-flow booleans.
type nordicFrameState int

const (
	nordicUnknown nordicFrameState = iota
	nordicFlagSearch
	nordicLenSearch
	nordicCollecting
)

const (
	nordicFlagByte   = 0xAA
	nordicEscapeByte = 0xA5
)

// nordicFramer reassembles `AA AA | flags | len | cmd | data... | xor`
// envelopes (with 0xA5 byte-stuffing escape) out of an arbitrarily chunked
// byte stream. One framer instance is owned per connection; Feed may be
// called with any slice length, including a single byte.
type nordicFramer struct {
	state         nordicFrameState
	flagCount     int
	escapePending bool
	length        int // payload length as declared by the len byte (cmd+data)
	buf           []byte
}

func newNordicFramer() *nordicFramer {
	return &nordicFramer{state: nordicUnknown}
}

func (f *nordicFramer) reset() {
	f.state = nordicUnknown
	f.flagCount = 0
	f.escapePending = false
	f.length = 0
	f.buf = f.buf[:0]
}

// Feed appends chunk to the framer and returns every complete,
// checksum-valid frame (header+flags+len+cmd+data, without the trailing
// XOR byte) extracted during this call, in order. Malformed frames are
// dropped silently and the framer resynchronizes on the next 0xAA 0xAA.
func (f *nordicFramer) Feed(chunk []byte) [][]byte {
	var out [][]byte
	for _, b := range chunk {
		if frame, ok := f.step(b); ok {
			out = append(out, frame)
		}
	}
	return out
}

func (f *nordicFramer) step(b byte) ([]byte, bool) {
	switch f.state {
	case nordicUnknown, nordicFlagSearch:
		if b == nordicFlagByte {
			f.flagCount++
			if f.flagCount >= 2 {
				f.state = nordicLenSearch
				f.buf = append(f.buf[:0], nordicFlagByte, nordicFlagByte)
				f.flagCount = 0
			} else {
				f.state = nordicFlagSearch
			}
			return nil, false
		}
		f.flagCount = 0
		f.state = nordicFlagSearch
		return nil, false

	case nordicLenSearch:
		// byte 1 of the header after the two flags is `flags`, byte 2 is
		// the length byte; collect both before deciding the target size.
		f.buf = append(f.buf, b)
		if len(f.buf) < 4 {
			return nil, false
		}
		// buf = [AA, AA, flags, len]
		f.length = int(f.buf[3])
		if f.length == 0 || f.length > 252 {
			f.reset()
			return nil, false
		}
		f.state = nordicCollecting
		return nil, false

	case nordicCollecting:
		if f.escapePending {
			f.buf = append(f.buf, b)
			f.escapePending = false
		} else if b == nordicEscapeByte {
			f.escapePending = true
			return nil, false
		} else {
			f.buf = append(f.buf, b)
		}
		// target size = header(4) + cmd+data+... (f.length bytes) + 1 checksum byte
		want := 4 + f.length + 1
		if len(f.buf) < want {
			return nil, false
		}
		frame := make([]byte, len(f.buf))
		copy(frame, f.buf)
		f.reset()

		payload := frame[2 : len(frame)-1]
		checksum := frame[len(frame)-1]
		if bytesutil.XORChecksum(payload) != checksum {
			return nil, false
		}
		return frame[:len(frame)-1], true
	}
	f.reset()
	return nil, false
}

// buildNordicFrame assembles an outbound `AA AA flags len cmd data... xor`
// frame. Any byte in flags/len/cmd/data/xor equal to 0xAA or 0xA5 is
// prefixed with a literal 0xA5 escape; the escaped byte itself is passed
// through unchanged.
func buildNordicFrame(flags byte, cmd byte, data []byte) []byte {
	body := make([]byte, 0, 2+len(data))
	body = append(body, cmd)
	body = append(body, data...)

	length := byte(len(body))
	unescaped := make([]byte, 0, 2+len(body))
	unescaped = append(unescaped, flags, length)
	unescaped = append(unescaped, body...)
	checksum := bytesutil.XORChecksum(unescaped)
	unescaped = append(unescaped, checksum)

	out := make([]byte, 0, len(unescaped)+4)
	out = append(out, nordicFlagByte, nordicFlagByte)
	for _, b := range unescaped {
		if b == nordicFlagByte || b == nordicEscapeByte {
			out = append(out, nordicEscapeByte, b)
			continue
		}
		out = append(out, b)
	}
	return out
}
