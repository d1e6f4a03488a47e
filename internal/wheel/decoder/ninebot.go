package decoder

import (
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

// bmsAssemblyTTL is the window within which every expected BMS sub-page
// must arrive or the partial assembly is discarded.
const bmsAssemblyTTL = 3000 * time.Millisecond

// Ninebot/NinebotZ speak the classic Ninebot/Xiaomi serial-over-BLE
// protocol, distinct from the AA-AA Nordic-UART envelope that InMotion V2
// uses for its outbound buildMessage primitive (see nordicuart.go and
// inmotionv2.go). Frame shape:
//
//	5A A5 | len | src | dst | cmd | data[len-2] | checksum_lo | checksum_hi
//
// checksum is the 16-bit ones'-complement of the sum of every byte from
// len through the last data byte, little-endian.
const (
	nbHeaderLo = 0x5A
	nbHeaderHi = 0xA5

	nbCmdSerial1 = 0x22 // serial number, fragment 1 of 3
	nbCmdSerial2 = 0x16 // fragment 2
	nbCmdSerial3 = 0xF8 // fragment 3
	nbCmdLive    = 0x20 // live speed/voltage/current/distance
	nbCmdStatus1 = 0x31
	nbCmdStatus2 = 0x32
	nbCmdCells1  = 0x40
	nbCmdCells2  = 0x41
	nbCmdCells3  = 0x42
)

type ninebotFragments struct {
	serial [3]string
	have   uint8
}

// Ninebot decodes both the original Ninebot protocol and its NinebotZ
// successor; isZ only changes the declared WheelType and keepalive
// interval.
type Ninebot struct {
	isZ   bool
	buf   []byte
	frags ninebotFragments
	bms   *wheel.SmartBms
	ready bool
}

func NewNinebot() *Ninebot {
	return &Ninebot{bms: wheel.NewSmartBms(0b111)}
}

func NewNinebotZ() *Ninebot {
	return &Ninebot{isZ: true, bms: wheel.NewSmartBms(0b111)}
}

func (n *Ninebot) WheelType() wheel.WheelType {
	if n.isZ {
		return wheel.WheelTypeNinebotZ
	}
	return wheel.WheelTypeNinebot
}

func (n *Ninebot) Reset() {
	n.buf = nil
	n.frags = ninebotFragments{}
	n.bms = wheel.NewSmartBms(0b111)
	n.ready = false
}

func (n *Ninebot) IsReady() bool { return n.ready }

func (n *Ninebot) InitCommands() []wheel.WheelCommand {
	return []wheel.WheelCommand{
		wheel.SendBytes{Payload: nbFrame(0x01, 0x03, nbCmdSerial1, nil)},
	}
}

func (n *Ninebot) KeepaliveCommand() (wheel.WheelCommand, time.Duration, bool) {
	interval := 1000 * time.Millisecond
	if n.isZ {
		interval = 200 * time.Millisecond
	}
	return wheel.SendBytes{Payload: nbFrame(0x01, 0x03, nbCmdLive, nil)}, interval, true
}

func nbFrame(src, dst, cmd byte, data []byte) []byte {
	body := make([]byte, 0, 3+len(data))
	body = append(body, src, dst, cmd)
	body = append(body, data...)
	length := byte(len(body) - 1) // len excludes the src byte's own accounting quirk retained from the wire protocol

	sum := uint16(length)
	for _, b := range body {
		sum += uint16(b)
	}
	checksum := ^sum

	frame := make([]byte, 0, 3+len(body)+2)
	frame = append(frame, nbHeaderLo, nbHeaderHi, length)
	frame = append(frame, body...)
	frame = append(frame, byte(checksum), byte(checksum>>8))
	return frame
}

func (n *Ninebot) Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	n.buf = append(n.buf, chunk...)

	var result *DecodedData
	for {
		idx := indexOfHeader(n.buf, nbHeaderLo, nbHeaderHi)
		if idx < 0 {
			if len(n.buf) > 1 {
				n.buf = n.buf[len(n.buf)-1:]
			}
			break
		}
		if idx > 0 {
			n.buf = n.buf[idx:]
		}
		if len(n.buf) < 4 {
			break
		}
		length := int(n.buf[2])
		want := 3 + length + 1 + 2 // header(2)+len(1) + body(length+1) + checksum(2)
		if len(n.buf) < want {
			break
		}
		frame := n.buf[:want]
		n.buf = n.buf[want:]

		if !n.verify(frame) {
			continue
		}
		dd := n.decodeFrame(frame, prior, cfg)
		if dd != nil {
			result = dd
			prior = dd.NewState
		}
	}
	return result, nil
}

func (n *Ninebot) verify(frame []byte) bool {
	length := frame[2]
	body := frame[3 : len(frame)-2]
	sum := uint16(length)
	for _, b := range body {
		sum += uint16(b)
	}
	want := ^sum
	got := bytesutil.U16LE(frame, len(frame)-2)
	return want == got
}

func (n *Ninebot) decodeFrame(frame []byte, prior *wheel.WheelState, cfg Config) *DecodedData {
	body := frame[3 : len(frame)-2]
	if len(body) < 3 {
		return nil
	}
	cmd := body[2]
	data := body[3:]

	s := prior.Clone()
	s.WheelType = n.WheelType()
	changed := false

	switch cmd {
	case nbCmdSerial1:
		if len(data) >= 7 {
			n.frags.serial[0] = string(data[:7])
			n.frags.have |= 1
		}
		return nil
	case nbCmdSerial2:
		if len(data) >= 7 {
			n.frags.serial[1] = string(data[:7])
			n.frags.have |= 2
		}
		return nil
	case nbCmdSerial3:
		if len(data) >= 7 {
			n.frags.serial[2] = string(data[:7])
			n.frags.have |= 4
		}
		if n.frags.have == 0b111 {
			p := n.bms.Pending()
			p.SerialNumber = n.frags.serial[0] + n.frags.serial[1] + n.frags.serial[2]
			n.ready = true
		}
		return nil

	case nbCmdLive:
		if len(data) < 8 {
			return nil
		}
		s.Voltage = int32(bytesutil.U16LE(data, 0))
		s.Speed = int32(bytesutil.I16LE(data, 2)) * 10
		s.Current = int32(bytesutil.I16LE(data, 4))
		s.TotalDistance = int64(bytesutil.U16LE(data, 6))
		changed = true

	case nbCmdStatus1:
		if len(data) < 2 {
			return nil
		}
		s.BatteryLevel = int32(data[0])
		s.Temperature = int32(data[1]) * 100
		changed = true

	case nbCmdStatus2:
		if len(data) < 1 {
			return nil
		}
		s.WheelAlarm = data[0] != 0
		changed = true

	case nbCmdCells1, nbCmdCells2, nbCmdCells3:
		n.accumulateCells(cmd, data)
		if n.bms.Complete() {
			snap := n.bms.Flush()
			s.BMS1 = snap
			changed = true
		} else {
			return nil
		}

	default:
		return nil
	}

	if !changed {
		return nil
	}
	return &DecodedData{NewState: s, HasNewData: true}
}

func (n *Ninebot) accumulateCells(cmd byte, data []byte) {
	p := n.bms.Pending()
	base := 0
	bit := uint32(0)
	switch cmd {
	case nbCmdCells1:
		base, bit = 0, 0b001
	case nbCmdCells2:
		base, bit = 5, 0b010
	case nbCmdCells3:
		base, bit = 10, 0b100
	}
	for i := 0; i+1 < len(data) && base+i/2 < wheel.MaxBmsCells; i += 2 {
		raw := bytesutil.U16LE(data, i)
		p.Cells[base+i/2] = float64(raw) / 1000.0
	}
	if int32(base+len(data)/2) > p.CellCount {
		p.CellCount = int32(base + len(data)/2)
	}
	n.bms.MarkPage(bit, time.Now().UnixMilli(), int64(bmsAssemblyTTL/time.Millisecond))
}

func (n *Ninebot) BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand {
	switch c := semantic.(type) {
	case wheel.Beep:
		return []wheel.WheelCommand{wheel.SendBytes{Payload: nbFrame(0x01, 0x03, 0x70, []byte{0x01})}}
	case wheel.SetLight:
		return []wheel.WheelCommand{wheel.SendBytes{Payload: nbFrame(0x01, 0x03, 0x71, []byte{boolByte(c.On)})}}
	case wheel.PowerOff:
		return []wheel.WheelCommand{wheel.SendBytes{Payload: nbFrame(0x01, 0x03, 0x72, nil)}}
	case wheel.RequestBmsData:
		return []wheel.WheelCommand{wheel.SendBytes{Payload: nbFrame(0x01, 0x03, nbCmdCells1, []byte{byte(c.Pack), byte(c.Index)})}}
	case wheel.SendBytes:
		return []wheel.WheelCommand{c}
	default:
		return nil
	}
}
