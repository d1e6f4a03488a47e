// Package decoder implements the seven vendor telemetry decoders plus the
// auto-detecting meta-decoder.
package decoder

import (
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
)

// Config carries the decode-time options a caller supplies to every call;
// it never changes shape mid-connection and decoders must not retain it
// beyond the call.
type Config struct {
	// InMiles is the caller's miles display preference. No decoder reads
	// it: every decoder reports metric fields regardless.
	InMiles bool

	// Kingsong: pack voltage bounds (1/100 V) spanning the non-linear
	// discharge curve used to derive BatteryLevel when the wire doesn't
	// carry a percentage directly. Defaults to a 20s pack (63.00V cutoff
	// .. 84.00V full) when zero.
	KingsongMinVoltage int32
	KingsongMaxVoltage int32

	// Gotway/Veteran: pack voltage bounds (1/100 V), same purpose.
	GotwayMinVoltage int32
	GotwayMaxVoltage int32
}

func (c Config) kingsongVoltageBounds() (min, max int32) {
	min, max = c.KingsongMinVoltage, c.KingsongMaxVoltage
	if min == 0 && max == 0 {
		return 6300, 8400
	}
	return min, max
}

// kingsongBatteryCurve is the fraction-of-range -> percent discharge curve
// for a Kingsong pack, expressed relative to [min,max] rather than in
// absolute volts so it scales to whatever pack bounds a build configures.
// Li-ion packs hold voltage fairly flat through the middle of the curve
// and fall sharply near both ends, so this curve reads above a straight
// interpolation between min and max everywhere inside the range (at 11%
// of the range it gives 15% rather than 11%).
var kingsongBatteryCurve = []struct {
	frac, percent float64
}{
	{0.00, 0},
	{0.05, 5},
	{0.11, 15},
	{0.20, 25},
	{0.30, 35},
	{0.40, 45},
	{0.50, 55},
	{0.60, 65},
	{0.70, 75},
	{0.80, 85},
	{0.90, 95},
	{1.00, 100},
}

// kingsongBatteryPercent maps voltage into [0,100] via kingsongBatteryCurve.
func kingsongBatteryPercent(voltage, min, max int32) int32 {
	if max <= min {
		return 0
	}
	frac := float64(voltage-min) / float64(max-min)
	if frac <= kingsongBatteryCurve[0].frac {
		return int32(kingsongBatteryCurve[0].percent)
	}
	last := kingsongBatteryCurve[len(kingsongBatteryCurve)-1]
	if frac >= last.frac {
		return int32(last.percent)
	}
	for i := 1; i < len(kingsongBatteryCurve); i++ {
		p := kingsongBatteryCurve[i]
		prev := kingsongBatteryCurve[i-1]
		if frac <= p.frac {
			ratio := (frac - prev.frac) / (p.frac - prev.frac)
			return int32(prev.percent + ratio*(p.percent-prev.percent))
		}
	}
	return 100
}

func (c Config) gotwayVoltageBounds() (min, max int32) {
	min, max = c.GotwayMinVoltage, c.GotwayMaxVoltage
	if min == 0 && max == 0 {
		return 5000, 6700
	}
	return min, max
}

// batteryPercentFromVoltage linearly maps voltage into [0,100], clamped.
func batteryPercentFromVoltage(voltage, min, max int32) int32 {
	if max <= min {
		return 0
	}
	if voltage <= min {
		return 0
	}
	if voltage >= max {
		return 100
	}
	return int32((voltage - min) * 100 / (max - min))
}

// DecodedData is the result of a single Decode call that produced a new,
// complete frame's worth of state. A nil *DecodedData return means no
// newly completed frame.
type DecodedData struct {
	NewState       *wheel.WheelState
	CommandsToSend []wheel.WheelCommand
	HasNewData     bool
	News           string // optional human-readable annotation
}

// Decoder is the common contract every vendor decoder implements.
type Decoder interface {
	// Decode consumes chunk (arbitrary-length, arbitrarily chunked by the
	// transport), updates internal framer state, and — if a complete,
	// checksum-valid frame was assembled — returns a DecodedData built
	// from a copy of prior with the frame's fields applied. Malformed
	// frames never error; they resolve to (nil, nil).
	Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error)

	// InitCommands is sent once, immediately post-connect.
	InitCommands() []wheel.WheelCommand

	// KeepaliveCommand returns the periodic poll command and interval
	// required by some vendor firmwares. ok is false when no keepalive
	// is required (Kingsong, Gotway).
	KeepaliveCommand() (cmd wheel.WheelCommand, interval time.Duration, ok bool)

	// BuildCommand encodes a high-level semantic command into the raw
	// byte sequence(s) that implement it.
	BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand

	// IsReady reports whether model identification has completed.
	IsReady() bool

	// Reset returns the decoder to its initial state between connections.
	Reset()

	// WheelType is this decoder's declared vendor type.
	WheelType() wheel.WheelType
}
