package decoder

import (
	"fmt"
	"strings"
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

// inMotionV2Model is one row of the static model registry keyed by
// (series, type): id = series*10 + type.
//
// layout records which of the five real-time data byte layouts a model
// uses (1=V11v1, 2=V11v2, 3=V12, 4=V13, 5=V14); decodeRealtime does not
// yet branch on it and always reads the V12/V13-shaped offsets below.
// The four other layouts are documented to differ in where torque,
// motor power and the per-field scale factors land, but no confirmed
// byte map for them exists to implement against, so the field is kept
// populated (future decoding work reads it) without being consulted yet.
type inMotionV2Model struct {
	id        int
	name      string
	maxSpeed  float64
	cellCount int
	layout    int
}

// inMotionV2Models is the 13-entry static registry. Layout selection for
// V11 additionally depends on firmware version (see processMainInfo).
var inMotionV2Models = []inMotionV2Model{
	{id: 10, name: "V11", maxSpeed: 45, cellCount: 24, layout: 1},
	{id: 11, name: "V11Y", maxSpeed: 45, cellCount: 24, layout: 1},
	{id: 12, name: "V11F", maxSpeed: 50, cellCount: 24, layout: 2},
	{id: 20, name: "V12", maxSpeed: 50, cellCount: 32, layout: 3},
	{id: 21, name: "V12HT", maxSpeed: 55, cellCount: 32, layout: 3},
	{id: 22, name: "V12PRO", maxSpeed: 55, cellCount: 32, layout: 3},
	{id: 23, name: "V12HTPRO", maxSpeed: 60, cellCount: 32, layout: 3},
	{id: 30, name: "V13", maxSpeed: 60, cellCount: 33, layout: 4},
	{id: 31, name: "V13PRO", maxSpeed: 65, cellCount: 33, layout: 4},
	{id: 32, name: "V13S", maxSpeed: 65, cellCount: 33, layout: 4},
	{id: 40, name: "V14", maxSpeed: 70, cellCount: 44, layout: 5},
	{id: 41, name: "V14PRO", maxSpeed: 70, cellCount: 44, layout: 5},
	{id: 42, name: "V14EX", maxSpeed: 75, cellCount: 44, layout: 5},
}

func lookupInMotionV2Model(id int) (inMotionV2Model, bool) {
	for _, m := range inMotionV2Models {
		if m.id == id {
			return m, true
		}
	}
	return inMotionV2Model{}, false
}

var v2ErrorBitNames = [7][8]string{
	{"iPhaseSensor", "iBusSensor", "motorHall", "battery", "imuSensor", "controllerCom1", "controllerCom2", "bleCom1"},
	{"bleCom2", "mosTempSensor", "motorTempSensor", "batteryTempSensor", "boardTempSensor", "fan", "rtc", "externalRom"},
	{"vBusSensor", "vBatterySensor", "canNotPowerOff", "notKnown1", "", "", "", ""},
	{"underVoltage", "overVoltage", "overBusCurrent", "overBusCurrent", "lowBattery", "lowBattery", "mosTemp", "motorTemp"},
	{"batteryTemp", "overBoardTemp", "overSpeed", "outputSaturation", "motorSpin", "motorBlock", "posture", "riskBehaviour"},
	{"motorNoLoad", "noSelfTest", "compatibility", "powerKeyLongPress", "forceDfu", "deviceLock", "cpuOverTemp", "imuOverTemp"},
	{"hwCompatibility", "fanLowSpeed", "notKnown2", "", "", "", "", ""},
}

func decodeV2AlertString(errBytes [7]byte) string {
	var names []string
	for byteIdx, b := range errBytes {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			name := v2ErrorBitNames[byteIdx][bit]
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return strings.Join(names, " ")
}

// InMotionV2 decodes the Nordic-UART-enveloped V13/V12/V11/V14 protocol.
// Live frames cannot be parsed until process_main_info has set a model
// (ModelNotIdentifiedYet); a live frame that arrives before then yields
// no data and no error, and is not kept for later decoding.
type InMotionV2 struct {
	framer *nordicFramer
	model  *inMotionV2Model
	serial string
	ready  bool
}

func NewInMotionV2() *InMotionV2 {
	return &InMotionV2{framer: newNordicFramer()}
}

func (v *InMotionV2) WheelType() wheel.WheelType { return wheel.WheelTypeInMotionV2 }

func (v *InMotionV2) Reset() {
	v.framer.reset()
	v.model = nil
	v.serial = ""
	v.ready = false
}

func (v *InMotionV2) IsReady() bool { return v.ready }

func (v *InMotionV2) InitCommands() []wheel.WheelCommand {
	return []wheel.WheelCommand{wheel.SendBytes{Payload: buildNordicFrame(0x00, 0x63, []byte{0x00})}} // request main info
}

func (v *InMotionV2) KeepaliveCommand() (wheel.WheelCommand, time.Duration, bool) {
	return wheel.SendBytes{Payload: buildNordicFrame(0x00, 0x64, nil)}, 25 * time.Millisecond, true
}

func (v *InMotionV2) Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	var result *DecodedData
	for _, frame := range v.framer.Feed(chunk) {
		dd := v.decodeFrame(frame, prior, cfg)
		if dd != nil {
			result = dd
			prior = dd.NewState
		}
	}
	return result, nil
}

func (v *InMotionV2) decodeFrame(frame []byte, prior *wheel.WheelState, cfg Config) *DecodedData {
	if len(frame) < 5 {
		return nil
	}
	cmd := frame[4]
	data := frame[5:]
	if len(data) == 0 {
		return nil
	}

	switch cmd {
	case 0x63: // process_main_info
		return v.processMainInfo(data, prior)
	case 0x65: // real-time data
		if v.model == nil {
			return nil // ModelNotIdentifiedYet
		}
		return v.decodeRealtime(data, prior, cfg)
	default:
		return nil
	}
}

func (v *InMotionV2) processMainInfo(data []byte, prior *wheel.WheelState) *DecodedData {
	if len(data) == 0 {
		return nil
	}
	s := prior.Clone()
	s.WheelType = wheel.WheelTypeInMotionV2
	changed := false

	switch data[0] {
	case 0x01: // model
		if len(data) < 3 {
			return nil
		}
		series := int(data[1])
		typ := int(data[2])
		if m, ok := lookupInMotionV2Model(series*10 + typ); ok {
			v.model = &m
			s.Model = m.name
			s.MaxSpeed = m.maxSpeed
			v.ready = true
			changed = true
		}
	case 0x02: // serial number
		if len(data) < 15 {
			return nil
		}
		v.serial = strings.TrimRight(string(data[1:15]), "\x00")
		s.SerialNumber = v.serial
		changed = true
	case 0x06: // versions; mainBoard1<2 && mainBoard2<4 selects V11 v1 layout
		if len(data) < 7 {
			return nil
		}
		mainBoard1, mainBoard2 := data[3], data[4]
		if v.model != nil && v.model.layout == 2 && mainBoard1 < 2 && mainBoard2 < 4 {
			v.model.layout = 1
		}
		s.Version = fmt.Sprintf("%d.%d", mainBoard1, mainBoard2)
		changed = true
	default:
		return nil
	}

	if !changed {
		return nil
	}
	return &DecodedData{NewState: s, HasNewData: true}
}

func (v *InMotionV2) decodeRealtime(data []byte, prior *wheel.WheelState, cfg Config) *DecodedData {
	if len(data) < 20 {
		return nil
	}
	s := prior.Clone()
	s.WheelType = wheel.WheelTypeInMotionV2

	s.Voltage = int32(bytesutil.U16LE(data, 0))
	s.Speed = int32(bytesutil.I16LE(data, 2))
	s.Current = int32(bytesutil.I16LE(data, 4))
	s.TotalDistance = int64(bytesutil.U32BE(bytesutil.WordSwapped(data[6:10]), 0))
	s.Temperature = (int32(data[10]) + 80 - 256) * 100
	s.CalculatedPwm = float64(bytesutil.I16LE(data, 11)) / 1000.0
	s.Torque = float64(bytesutil.I16LE(data, 13)) / 100.0
	s.MotorPower = float64(bytesutil.I16LE(data, 15)) / 10.0

	if len(data) >= 27 {
		var errBytes [7]byte
		copy(errBytes[:], data[20:27])
		s.Alert = decodeV2AlertString(errBytes)
	}

	if v.model != nil {
		min, max := cfg.gotwayVoltageBounds()
		s.BatteryLevel = batteryPercentFromVoltage(s.Voltage, min, max)
	}

	return &DecodedData{NewState: s, HasNewData: true}
}

// BuildCommand wraps every semantic command in the fixed V2 "CONTROL"
// envelope: flags=0x14, cmd=0x60, with the command-specific opcode as
// data[0] followed by that opcode's own argument bytes. SetLight, SetLock
// and Beep (PlaySound) use the opcodes the wire format documents; the
// remaining semantic commands have no documented opcode and reuse the
// numbering this decoder has always sent under the same CONTROL envelope.
func (v *InMotionV2) BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand {
	control := func(opcode byte, data ...byte) []wheel.WheelCommand {
		payload := append([]byte{opcode}, data...)
		return []wheel.WheelCommand{wheel.SendBytes{Payload: buildNordicFrame(0x14, 0x60, payload)}}
	}
	switch c := semantic.(type) {
	case wheel.Beep:
		return control(0x51, 0x01, 0x01) // PlaySound, tone id 1, trailing 0x01
	case wheel.SetLight:
		return control(0x50, boolByte(c.On))
	case wheel.SetLock:
		return control(0x31, boolByte(c.On))
	case wheel.SetMaxSpeed:
		return control(0x72, byte(c.KmH))
	case wheel.SetPedalTilt:
		return control(0x73, byte(c.Deg))
	case wheel.SetPedalSensitivity:
		return control(0x74, byte(c.Value))
	case wheel.SetRideMode:
		return control(0x75, boolByte(c.On))
	case wheel.SetFancierMode:
		return control(0x76, boolByte(c.On))
	case wheel.SetSpeakerVolume:
		return control(0x77, byte(c.Volume))
	case wheel.SetMute:
		return control(0x78, boolByte(c.On))
	case wheel.SetHandleButton:
		return control(0x79, boolByte(c.On))
	case wheel.SetDrl:
		return control(0x7A, boolByte(c.On))
	case wheel.SetLightBrightness:
		return control(0x7B, byte(c.Value))
	case wheel.SetTransportMode:
		return control(0x7C, boolByte(c.On))
	case wheel.SetGoHomeMode:
		return control(0x7D, boolByte(c.On))
	case wheel.SetFanQuiet:
		return control(0x7E, boolByte(c.On))
	case wheel.SendBytes:
		return []wheel.WheelCommand{c}
	default:
		return nil
	}
}
