package decoder

import (
	"hash/crc32"
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

// InMotion V1 speaks a CAN-message framing whose full opcode catalog is
// large and only partially documented: live telemetry and the handful of
// named commands below are implemented faithfully; every other outbound
// opcode is exposed to callers as an explicit SendBytes literal rather
// than reverse-engineered.
//
// Frame shape: `header(0x55 0xAA 0x08) | canId(4, BE) | dlc(1) | data[8] | crc32(4, BE)`.
const (
	v1HeaderLen = 7 // 0x55 0xAA 0x08 + 4-byte CAN id
	v1FrameLen  = v1HeaderLen + 1 + 8 + 4

	v1CanIDLive  = 0x0B8B1000
	v1CanIDBeep  = 0x0B8B2000
	v1CanIDLight = 0x0B8B2001
)

// v1ChunkSize and v1ChunkDelay implement §5's "payload chunked into
// 20-byte BLE writes with a 20ms inter-chunk delay".
const (
	v1ChunkSize  = 20
	v1ChunkDelay = 20 * time.Millisecond
)

type InMotionV1 struct {
	buf   []byte
	ready bool
}

func NewInMotionV1() *InMotionV1 { return &InMotionV1{ready: true} }

func (v *InMotionV1) WheelType() wheel.WheelType { return wheel.WheelTypeInMotion }

func (v *InMotionV1) Reset() { v.buf = nil }

func (v *InMotionV1) IsReady() bool { return v.ready }

func (v *InMotionV1) InitCommands() []wheel.WheelCommand { return nil }

func (v *InMotionV1) KeepaliveCommand() (wheel.WheelCommand, time.Duration, bool) {
	return nil, 0, false
}

func (v *InMotionV1) Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	v.buf = append(v.buf, chunk...)

	var result *DecodedData
	for {
		idx := indexOfV1Header(v.buf)
		if idx < 0 {
			if len(v.buf) > 2 {
				v.buf = v.buf[len(v.buf)-2:]
			}
			break
		}
		if idx > 0 {
			v.buf = v.buf[idx:]
		}
		if len(v.buf) < v1FrameLen {
			break
		}
		frame := v.buf[:v1FrameLen]
		v.buf = v.buf[v1FrameLen:]

		if !v.verify(frame) {
			continue
		}
		dd := v.decodeFrame(frame, prior)
		if dd != nil {
			result = dd
			prior = dd.NewState
		}
	}
	return result, nil
}

func indexOfV1Header(buf []byte) int {
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0x55 && buf[i+1] == 0xAA && buf[i+2] == 0x08 {
			return i
		}
	}
	return -1
}

func (v *InMotionV1) verify(frame []byte) bool {
	want := bytesutil.U32BE(frame, v1FrameLen-4)
	got := crc32Of(frame[:v1FrameLen-4])
	return want == got
}

func (v *InMotionV1) decodeFrame(frame []byte, prior *wheel.WheelState) *DecodedData {
	canID := bytesutil.U32BE(frame, 3)
	data := frame[v1HeaderLen+1 : v1HeaderLen+1+8]

	if canID != v1CanIDLive {
		return nil
	}

	s := prior.Clone()
	s.WheelType = wheel.WheelTypeInMotion
	s.Voltage = int32(bytesutil.U16BE(data, 0))
	s.Speed = int32(bytesutil.I16BE(data, 2))
	s.Current = int32(bytesutil.I16BE(data, 4))
	s.Temperature = int32(data[6]) * 100

	return &DecodedData{NewState: s, HasNewData: true}
}

func (v *InMotionV1) BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand {
	frame := func(canID uint32, data []byte) []byte {
		f := make([]byte, v1FrameLen)
		f[0], f[1], f[2] = 0x55, 0xAA, 0x08
		bytesutil.PutU32BEInto(f, 3, canID)
		f[v1HeaderLen] = byte(len(data))
		copy(f[v1HeaderLen+1:], data)
		crc := crc32Of(f[:v1FrameLen-4])
		bytesutil.PutU32BEInto(f, v1FrameLen-4, crc)
		return f
	}
	chunked := func(payload []byte) []wheel.WheelCommand {
		var out []wheel.WheelCommand
		for i := 0; i < len(payload); i += v1ChunkSize {
			end := i + v1ChunkSize
			if end > len(payload) {
				end = len(payload)
			}
			out = append(out, wheel.SendDelayed{Payload: payload[i:end], DelayMs: int(v1ChunkDelay / time.Millisecond)})
		}
		return out
	}

	switch c := semantic.(type) {
	case wheel.Beep:
		return chunked(frame(v1CanIDBeep, []byte{0x01}))
	case wheel.SetLight:
		return chunked(frame(v1CanIDLight, []byte{boolByte(c.On)}))
	case wheel.SendBytes:
		return []wheel.WheelCommand{c}
	default:
		return nil
	}
}

// crc32Of is InMotion V1's frame CRC: standard IEEE CRC-32 over the
// header+CAN-id+dlc+data span. No third-party library in the example
// corpus covers CRC-32 (sigurn/crc16 is 16-bit only); hash/crc32 is the
// stdlib's direct, correct answer rather than a hand-rolled reinvention.
func crc32Of(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
