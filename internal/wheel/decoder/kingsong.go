package decoder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

const (
	ksFrameLen   = 20
	ksHeaderLo   = 0xAA
	ksHeaderHi   = 0x55
	ksTypeOffset = 16

	ksTypeLive     = 0xA9
	ksTypeNameVer  = 0xBB
	ksTypeDistance = 0xB9
	ksTypeAlarm    = 0xB6 // Alarm/speed-limit settings echo
	ksTypeCellAck  = 0xBC
	ksTypeBms1     = 0xF1 // first pack, 7-page assembly
	ksTypeBms2     = 0xF2 // second pack, 7-page assembly
	ksTypeExtBms   = 0xD0 // single-frame extended BMS (F-series)
)

// Kingsong decodes the 20-byte `AA 55 ... <type> <trailer x3>` frames
// emitted by KS-series wheels. Every live 16-bit field is stored on the
// wire word-swapped (low half-word first) and must be re-swapped before
// reading.
type Kingsong struct {
	buf   []byte // bytes accumulated since the last AA 55 header match
	ready bool
	name  string
	model string
	ver   string

	bms1 *wheel.SmartBms // pages 0-6
	bms2 *wheel.SmartBms
}

func NewKingsong() *Kingsong {
	return &Kingsong{
		bms1: wheel.NewSmartBms(0b1111111),
		bms2: wheel.NewSmartBms(0b1111111),
	}
}

func (k *Kingsong) WheelType() wheel.WheelType { return wheel.WheelTypeKingsong }

func (k *Kingsong) Reset() {
	k.buf = nil
	k.ready = false
	k.name, k.model, k.ver = "", "", ""
	k.bms1 = wheel.NewSmartBms(0b1111111)
	k.bms2 = wheel.NewSmartBms(0b1111111)
}

func (k *Kingsong) IsReady() bool { return k.ready }

func (k *Kingsong) InitCommands() []wheel.WheelCommand {
	return []wheel.WheelCommand{
		wheel.SendBytes{Payload: []byte{0xAA, 0x55, 0x18, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x98, 0x14, 0x5A, 0x5A}}, // request name/model
	}
}

func (k *Kingsong) KeepaliveCommand() (wheel.WheelCommand, time.Duration, bool) {
	return nil, 0, false
}

// Decode feeds chunk through a simple header-resynchronizing accumulator:
// Kingsong has no byte-stuffing, so framing is just "wait for AA 55, then
// 20 bytes total".
func (k *Kingsong) Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	k.buf = append(k.buf, chunk...)

	var result *DecodedData
	for {
		idx := indexOfHeader(k.buf, ksHeaderLo, ksHeaderHi)
		if idx < 0 {
			if len(k.buf) > 1 {
				k.buf = k.buf[len(k.buf)-1:]
			}
			break
		}
		if idx > 0 {
			k.buf = k.buf[idx:]
		}
		if len(k.buf) < ksFrameLen {
			break
		}
		frame := k.buf[:ksFrameLen]
		k.buf = k.buf[ksFrameLen:]

		dd := k.decodeFrame(frame, prior, cfg)
		if dd != nil {
			result = dd
			prior = dd.NewState
		}
	}
	return result, nil
}

func indexOfHeader(buf []byte, lo, hi byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == lo && buf[i+1] == hi {
			return i
		}
	}
	return -1
}

func (k *Kingsong) decodeFrame(frame []byte, prior *wheel.WheelState, cfg Config) *DecodedData {
	payload := frame[2:ksTypeOffset] // 14 bytes
	typ := frame[ksTypeOffset]

	s := prior.Clone()
	s.WheelType = wheel.WheelTypeKingsong

	switch typ {
	case ksTypeNameVer:
		raw := strings.TrimRight(string(payload), "\x00")
		k.name = raw
		if i := strings.LastIndex(raw, "-"); i >= 0 && len(raw)-i-1 == 4 {
			k.model = raw[:i]
			suffix := raw[i+1:]
			if major, err := strconv.Atoi(suffix[:2]); err == nil {
				k.ver = fmt.Sprintf("%d.%s", major, suffix[2:])
			}
		} else {
			k.model = raw
		}
		s.Name = k.name
		s.Model = k.model
		s.Version = k.ver
		k.ready = k.name != ""

	case ksTypeLive:
		w := bytesutil.WordSwapped(payload)
		voltage := int32(bytesutil.U16BE(w, 0))
		speed := int32(bytesutil.I16BE(w, 2))
		distance := int32(bytesutil.I32BE(w, 4))
		current := int32(bytesutil.I16BE(w, 8))
		temp := int32(bytesutil.I16BE(w, 10))

		s.Voltage = voltage
		s.Speed = speed
		s.TotalDistance = int64(distance)
		s.Current = current
		s.Temperature = temp
		min, max := cfg.kingsongVoltageBounds()
		s.BatteryLevel = kingsongBatteryPercent(voltage, min, max)

	case ksTypeDistance:
		w := bytesutil.WordSwapped(payload)
		tripDistance := int32(bytesutil.I32BE(w, 0))
		temp2 := int32(bytesutil.I16BE(w, 6))
		s.WheelDistance = int64(tripDistance)
		s.Temperature2 = temp2

	case ksTypeAlarm:
		w := bytesutil.WordSwapped(payload)
		s.SpeedAlarms = int32(bytesutil.U16BE(w, 0))
		s.SpeedLimit = float64(bytesutil.I16BE(w, 2))

	case ksTypeBms1, ksTypeBms2:
		bms := k.bms1
		if typ == ksTypeBms2 {
			bms = k.bms2
		}
		if !k.accumulateBmsPage(bms, payload) {
			return nil
		}
		snap := bms.Flush()
		if typ == ksTypeBms1 {
			s.BMS1 = snap
		} else {
			s.BMS2 = snap
		}

	case ksTypeExtBms:
		s.BMS1 = k.decodeExtendedBms(payload)

	case ksTypeCellAck:
		// Cell/BMS acknowledgement frame: no WheelState fields carried.
		return nil

	default:
		return nil
	}

	return &DecodedData{NewState: s, HasNewData: true}
}

// accumulateBmsPage assembles one of the 7 pages (page index = payload[0])
// into bms and reports whether all pages have now been seen:
// page0=voltage/current/remCap/factoryCap/fullCycles, page1=temps,
// pages2-4=7 cell voltages each, page5=reserved, page6=balance/MOS-temp
// and triggers cell-statistics recompute.
func (k *Kingsong) accumulateBmsPage(bms *wheel.SmartBms, payload []byte) bool {
	if len(payload) < 14 {
		return false
	}
	page := payload[0]
	body := payload[1:]
	p := bms.Pending()

	switch page {
	case 0:
		w := bytesutil.WordSwapped(body)
		p.Voltage = int32(bytesutil.U16BE(w, 0))
		p.Current = int32(bytesutil.I16BE(w, 2))
		p.RemainCap = int32(bytesutil.U16BE(w, 4))
		p.FactoryCap = int32(bytesutil.U16BE(w, 6))
		p.FullCycles = int32(bytesutil.U16BE(w, 8))
	case 1:
		p.MosTemp = int32(body[0])
		for i := 0; i < 4 && i+1 < len(body); i++ {
			p.Temps[i] = int32(body[i+1])
		}
	case 2, 3, 4:
		base := int(page-2) * 7
		for i := 0; i+1 < len(body) && i/2 < 7 && base+i/2 < wheel.MaxBmsCells; i += 2 {
			raw := bytesutil.U16BE(body, i)
			p.Cells[base+i/2] = float64(raw) / 1000.0
			if int32(base+i/2+1) > p.CellCount {
				p.CellCount = int32(base + i/2 + 1)
			}
		}
	case 5:
		// reserved; presence alone counts toward completion.
	case 6:
		p.Balance = bytesutil.U32BE(body, 0)
		if len(body) > 4 {
			p.MosTemp = int32(body[4])
		}
	default:
		return false
	}

	bms.MarkPage(1<<uint(page), time.Now().UnixMilli(), int64(bmsAssemblyTTL/time.Millisecond))
	return bms.Complete()
}

// decodeExtendedBms parses the 0xD0 single-frame extended BMS used by
// F-series wheels. Cell count N is derived from the payload's own length
// field, never hard-coded per model. A 20-byte Kingsong frame only has
// room for a handful of cells per 0xD0
// frame; real firmware pages a full N-cell pack across several such
// frames, which accumulate into the same *wheel.BmsSnapshot across calls
// in a fuller build — this decodes exactly what a single frame carries.
func (k *Kingsong) decodeExtendedBms(payload []byte) *wheel.BmsSnapshot {
	if len(payload) < 2 {
		return nil
	}
	w := bytesutil.WordSwapped(payload)
	n := int(w[1])
	if n > wheel.MaxBmsCells {
		n = wheel.MaxBmsCells
	}

	snap := &wheel.BmsSnapshot{}
	snap.Voltage = int32(bytesutil.U16BE(w, 2))
	snap.Current = int32(bytesutil.I16BE(w, 4))
	snap.RemPerc = int32(w[6])
	snap.FactoryCap = int32(bytesutil.U16BE(w, 7))
	snap.FullCycles = int32(bytesutil.U16BE(w, 9))
	snap.CellCount = int32(n)

	cellsStart := 11
	for i := 0; i < n && cellsStart+i*2+1 < len(w); i++ {
		raw := bytesutil.U16BE(w, cellsStart+i*2)
		snap.Cells[i] = float64(raw) / 1000.0
	}
	return snap
}

func (k *Kingsong) BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand {
	frame := func(payload ...byte) wheel.WheelCommand {
		f := make([]byte, ksFrameLen)
		f[0], f[1] = ksHeaderLo, ksHeaderHi
		copy(f[2:], payload)
		f[ksTypeOffset] = 0 // filled by caller below when relevant
		return wheel.SendBytes{Payload: f}
	}

	switch c := semantic.(type) {
	case wheel.Beep:
		f := frame()
		f.(wheel.SendBytes).Payload[ksTypeOffset] = 0x88
		return []wheel.WheelCommand{f}
	case wheel.SetLight:
		f := frame(boolByte(c.On))
		f.(wheel.SendBytes).Payload[ksTypeOffset] = 0x7C
		return []wheel.WheelCommand{f}
	case wheel.SetMaxSpeed:
		raw := uint16(c.KmH * 100)
		f := frame()
		p := f.(wheel.SendBytes).Payload
		bytesutil.PutU16BEInto(p, 2, raw)
		p[ksTypeOffset] = 0x98
		return []wheel.WheelCommand{f}
	case wheel.SetKingsongAlarms:
		f := frame(byte(c.Alarm1), byte(c.Alarm2), byte(c.Alarm3), byte(c.MaxSpeed))
		f.(wheel.SendBytes).Payload[ksTypeOffset] = 0x98
		return []wheel.WheelCommand{f}
	case wheel.RequestAlarmSettings:
		f := frame()
		f.(wheel.SendBytes).Payload[ksTypeOffset] = 0x9B
		return []wheel.WheelCommand{f}
	case wheel.PowerOff:
		f := frame()
		f.(wheel.SendBytes).Payload[ksTypeOffset] = 0x7D
		return []wheel.WheelCommand{f}
	case wheel.SendBytes:
		return []wheel.WheelCommand{c}
	default:
		return nil
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
