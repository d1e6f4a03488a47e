package decoder

import (
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

// Gotway/Veteran share a 24-byte frame shape and field layout; Veteran
// differs only in its 3-byte header and CRC-16/MODBUS trailer in place of
// Gotway's checksum-and-footer.
const (
	gwFrameLen = 24

	gwSubframeLive     = 0x00 // speed/voltage/current/temperature/distance
	gwSubframeExtended = 0x01 // phase current + secondary fields

	gwFooter1 = 0x18
	gwFooter2 = 0x5A
)

type gotwayVariant struct {
	isVeteran bool
}

// Gotway decodes Begode/Gotway-family frames. Veteran uses the identical
// field layout behind a different header/trailer, so it's built on top of
// the same implementation via NewVeteran.
type Gotway struct {
	variant gotwayVariant
	buf     []byte
	ready   bool
	fwVer   int
}

func NewGotway() *Gotway  { return &Gotway{ready: true} }
func NewVeteran() *Gotway { return &Gotway{variant: gotwayVariant{isVeteran: true}, ready: true} }

func (g *Gotway) WheelType() wheel.WheelType {
	if g.variant.isVeteran {
		return wheel.WheelTypeVeteran
	}
	return wheel.WheelTypeGotway
}

func (g *Gotway) Reset() {
	g.buf = nil
}

// IsReady is always true for Gotway/Veteran: there is no separate
// name/model handshake, unlike Kingsong.
func (g *Gotway) IsReady() bool { return g.ready }

func (g *Gotway) InitCommands() []wheel.WheelCommand { return nil }

func (g *Gotway) KeepaliveCommand() (wheel.WheelCommand, time.Duration, bool) {
	return nil, 0, false
}

func (g *Gotway) headerLen() int {
	if g.variant.isVeteran {
		return 3
	}
	return 2
}

func (g *Gotway) matchesHeader(b []byte) bool {
	if g.variant.isVeteran {
		return len(b) >= 3 && b[0] == 0xDC && b[1] == 0x5A && b[2] == 0x5C
	}
	return len(b) >= 2 && b[0] == 0x55 && b[1] == 0xAA
}

func (g *Gotway) findHeader(buf []byte) int {
	if g.variant.isVeteran {
		for i := 0; i+2 < len(buf); i++ {
			if buf[i] == 0xDC && buf[i+1] == 0x5A && buf[i+2] == 0x5C {
				return i
			}
		}
		return -1
	}
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0x55 && buf[i+1] == 0xAA {
			return i
		}
	}
	return -1
}

func (g *Gotway) Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	g.buf = append(g.buf, chunk...)

	var result *DecodedData
	for {
		idx := g.findHeader(g.buf)
		if idx < 0 {
			if len(g.buf) > 2 {
				g.buf = g.buf[len(g.buf)-2:]
			}
			break
		}
		if idx > 0 {
			g.buf = g.buf[idx:]
		}
		if len(g.buf) < gwFrameLen {
			break
		}
		frame := g.buf[:gwFrameLen]
		g.buf = g.buf[gwFrameLen:]

		if !g.verify(frame) {
			continue
		}
		dd := g.decodeFrame(frame, prior, cfg)
		if dd != nil {
			result = dd
			prior = dd.NewState
		}
	}
	return result, nil
}

func (g *Gotway) verify(frame []byte) bool {
	if g.variant.isVeteran {
		want := bytesutil.U16BE(frame, gwFrameLen-2)
		got := bytesutil.VeteranCRC16(frame[:gwFrameLen-2])
		return want == got
	}
	if frame[gwFrameLen-2] != gwFooter1 || frame[gwFrameLen-1] != gwFooter2 {
		return false
	}
	want := frame[gwFrameLen-3]
	got := bytesutil.SumLow8(frame[2 : gwFrameLen-3])
	return want == got
}

func (g *Gotway) decodeFrame(frame []byte, prior *wheel.WheelState, cfg Config) *DecodedData {
	hl := g.headerLen()
	p := frame[hl:]

	s := prior.Clone()
	s.WheelType = g.WheelType()

	voltage := int32(bytesutil.U16BE(p, 0))
	rawSpeed := bytesutil.I16BE(p, 2)
	distance := bytesutil.I32BE(p, 4)
	current := int32(bytesutil.I16BE(p, 8))
	temp := int32(bytesutil.I16BE(p, 10))
	subType := p[14]

	s.Voltage = voltage
	s.Speed = int32(float64(rawSpeed) * 3.6)
	s.TotalDistance = int64(distance)
	s.WheelDistance = int64(distance)
	s.Current = current
	s.Temperature = temp // raw is already 1/100 °C scale (see DESIGN.md decision 1)

	min, max := cfg.gotwayVoltageBounds()
	s.BatteryLevel = batteryPercentFromVoltage(voltage, min, max)

	switch subType {
	case gwSubframeExtended:
		phaseCurrent := bytesutil.I16BE(p, 15)
		s.PhaseCurrent = int32(phaseCurrent)
	case gwSubframeLive:
	default:
		return nil
	}

	return &DecodedData{NewState: s, HasNewData: true}
}

func (g *Gotway) BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand {
	switch c := semantic.(type) {
	case wheel.Calibrate:
		return []wheel.WheelCommand{
			wheel.SendBytes{Payload: []byte("c")},
			wheel.SendDelayed{Payload: []byte("y"), DelayMs: 300},
		}
	case wheel.SetPedalsMode:
		letters := map[int]byte{0: 'h', 1: 'f', 2: 's', 3: 'm'}
		if l, ok := letters[c.Mode]; ok {
			return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte{l}}}
		}
		return nil
	case wheel.ResetTrip:
		if g.variant.isVeteran {
			return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte{0xDC, 0x5A, 0x5C, 0x01}}}
		}
		return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte("r")}}
	case wheel.SetLight:
		if g.variant.isVeteran {
			return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte{0xDC, 0x5A, 0x5C, boolByte(c.On) + 0x10}}}
		}
		if c.On {
			return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte("L")}}
		}
		return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte("l")}}
	case wheel.Beep:
		// Veteran gates Beep on firmware >= 3, but the live/extended
		// subframes this decoder parses carry no version field to read
		// that from, so fwVer is never assigned and Beep stays disabled
		// on Veteran until a version source is identified.
		if g.variant.isVeteran && g.fwVer < 3 {
			return nil
		}
		return []wheel.WheelCommand{wheel.SendBytes{Payload: []byte("b")}}
	case wheel.SendBytes:
		return []wheel.WheelCommand{c}
	default:
		return nil
	}
}
