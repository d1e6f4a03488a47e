// Package wheel holds the vendor-neutral telemetry data model shared by
// every decoder: the immutable WheelState snapshot, the BMS container
// types, the outbound WheelCommand sum type, and ConnectionState.
package wheel

import "strings"

// WheelType identifies the vendor protocol family a WheelState came from.
type WheelType int

const (
	WheelTypeUnknown WheelType = iota
	WheelTypeKingsong
	WheelTypeGotway
	WheelTypeVeteran
	WheelTypeNinebot
	WheelTypeNinebotZ
	WheelTypeInMotion
	WheelTypeInMotionV2
	WheelTypeGotwayVirtual
)

func (t WheelType) String() string {
	switch t {
	case WheelTypeKingsong:
		return "Kingsong"
	case WheelTypeGotway:
		return "Gotway"
	case WheelTypeVeteran:
		return "Veteran"
	case WheelTypeNinebot:
		return "Ninebot"
	case WheelTypeNinebotZ:
		return "NinebotZ"
	case WheelTypeInMotion:
		return "InMotion"
	case WheelTypeInMotionV2:
		return "InMotionV2"
	case WheelTypeGotwayVirtual:
		return "GotwayVirtual"
	default:
		return "Unknown"
	}
}

// ParseWheelType maps a config/flag string (case-insensitive) to a
// WheelType, for wiring an explicit vendor hint into Manager.Connect.
// Returns WheelTypeUnknown for anything unrecognized.
func ParseWheelType(s string) WheelType {
	switch strings.ToLower(s) {
	case "kingsong":
		return WheelTypeKingsong
	case "gotway":
		return WheelTypeGotway
	case "veteran":
		return WheelTypeVeteran
	case "ninebot":
		return WheelTypeNinebot
	case "ninebotz":
		return WheelTypeNinebotZ
	case "inmotion":
		return WheelTypeInMotion
	case "inmotionv2":
		return WheelTypeInMotionV2
	default:
		return WheelTypeUnknown
	}
}

// WheelState is an immutable telemetry snapshot. Every decode produces a
// fresh snapshot by copying the prior one and overwriting the fields the
// frame supplies; nothing ever mutates a published WheelState in place.
//
// Fixed-point integer fields carry the scale factor documented per field;
// consumers convert for display. Unknown integer settings are -1; unknown
// booleans default false.
type WheelState struct {
	Speed        int32 `json:"speed"`        // 1/100 km/h
	Voltage      int32 `json:"voltage"`      // 1/100 V
	Current      int32 `json:"current"`      // 1/100 A, signed (+ draw, - regen)
	PhaseCurrent int32 `json:"phaseCurrent"` // 1/100 A (Gotway/Veteran)
	Power        int32 `json:"power"`        // 1/100 W

	Temperature  int32 `json:"temperature"`  // 1/100 °C, board
	Temperature2 int32 `json:"temperature2"` // 1/100 °C, motor

	BatteryLevel int32 `json:"batteryLevel"` // 0..100

	TotalDistance int64 `json:"totalDistance"` // m
	WheelDistance int64 `json:"wheelDistance"` // m (trip)

	Output        int32   `json:"output"`        // 1/100 of ratio
	CalculatedPwm float64 `json:"calculatedPwm"` // 0..1

	Angle float64 `json:"angle"` // degrees
	Roll  float64 `json:"roll"`  // degrees

	Torque     float64 `json:"torque"`     // Nm, InMotion V2
	MotorPower float64 `json:"motorPower"` // W, InMotion V2

	CPUTemp int32 `json:"cpuTemp"` // °C
	IMUTemp int32 `json:"imuTemp"` // °C

	SpeedLimit   float64 `json:"speedLimit"`   // km/h, dynamic wheel-reported
	CurrentLimit float64 `json:"currentLimit"` // A, dynamic wheel-reported

	WheelAlarm bool      `json:"wheelAlarm"`
	WheelType  WheelType `json:"wheelType"`

	Name         string `json:"name"`
	Model        string `json:"model"`
	ModeStr      string `json:"modeStr"`
	Version      string `json:"version"`
	SerialNumber string `json:"serialNumber"`
	BtName       string `json:"btName"`

	BMS1 *BmsSnapshot `json:"bms1,omitempty"`
	BMS2 *BmsSnapshot `json:"bms2,omitempty"`

	InMiles bool `json:"inMiles"`

	PedalsMode    int32 `json:"pedalsMode"` // -1 = unknown
	LightMode     int32 `json:"lightMode"`
	LedMode       int32 `json:"ledMode"`
	RollAngle     int32 `json:"rollAngle"`
	SpeedAlarms   int32 `json:"speedAlarms"`
	TiltBackSpeed int32 `json:"tiltBackSpeed"`
	CutoutAngle   int32 `json:"cutoutAngle"`

	// InMotion V2 settings
	MaxSpeed         float64 `json:"maxSpeed"`
	PedalTilt        int32   `json:"pedalTilt"`
	PedalSensitivity int32   `json:"pedalSensitivity"`
	RideMode         int32   `json:"rideMode"`
	FancierMode      bool    `json:"fancierMode"`
	SpeakerVolume    int32   `json:"speakerVolume"`
	Mute             bool    `json:"mute"`
	HandleButton     bool    `json:"handleButton"`
	Drl              bool    `json:"drl"`
	LightBrightness  int32   `json:"lightBrightness"`
	TransportMode    bool    `json:"transportMode"`
	GoHomeMode       bool    `json:"goHomeMode"`
	FanQuiet         bool    `json:"fanQuiet"`

	Error string `json:"error,omitempty"`
	Alert string `json:"alert,omitempty"`

	Timestamp int64 `json:"timestamp"` // epoch ms
}

// KmToMiles is the WheelLog-compatible conversion constant.
const KmToMiles = 0.62137119223733

// NewWheelState returns a zero-value snapshot with every unknown integer
// setting defaulted to -1 rather than 0, so "unset" is distinguishable
// from a reported value of zero.
func NewWheelState() *WheelState {
	return &WheelState{
		WheelType:        WheelTypeUnknown,
		PedalsMode:       -1,
		LightMode:        -1,
		LedMode:          -1,
		RollAngle:        -1,
		SpeedAlarms:      -1,
		TiltBackSpeed:    -1,
		CutoutAngle:      -1,
		PedalTilt:        -1,
		PedalSensitivity: -1,
		RideMode:         -1,
		SpeakerVolume:    -1,
		LightBrightness:  -1,
	}
}

// Clone returns a shallow copy of s suitable as the base for the next
// decode call. BMS snapshots are immutable so sharing the pointer is safe;
// a decoder that produces new BMS data replaces the pointer wholesale.
func (s *WheelState) Clone() *WheelState {
	if s == nil {
		return NewWheelState()
	}
	cp := *s
	return &cp
}
