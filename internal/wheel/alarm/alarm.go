// Package alarm implements the AlarmChecker: evaluating a WheelState
// snapshot against an AlarmConfig into triggered alarms, an optional
// pre-warning, and an alarm bitmask.
package alarm

import (
	"math"
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
)

// Bitmask values for the alarm_bitmask result field.
const (
	BitSpeed1      uint32 = 0x01
	BitCurrent     uint32 = 0x02
	BitTemperature uint32 = 0x04
	BitSpeed2      uint32 = 0x08
	BitSpeed3      uint32 = 0x10
	BitPWM         uint32 = 0x20
	BitBattery     uint32 = 0x40
	BitWheel       uint32 = 0x80
)

// Type identifies an alarm or pre-warning kind.
type Type int

const (
	TypeSpeed1 Type = iota
	TypeSpeed2
	TypeSpeed3
	TypeCurrent
	TypePhaseCurrent
	TypeTemperature
	TypeMotorTemperature
	TypeBattery
	TypePWM
	TypeWheel
)

// cooldown windows: speed/PWM/temperature/battery/wheel re-fire no sooner
// than 500ms apart, current alarms re-fire at 170ms.
var cooldowns = map[Type]time.Duration{
	TypeSpeed1:           500 * time.Millisecond,
	TypeSpeed2:           500 * time.Millisecond,
	TypeSpeed3:           500 * time.Millisecond,
	TypeCurrent:          170 * time.Millisecond,
	TypePhaseCurrent:     170 * time.Millisecond,
	TypeTemperature:      500 * time.Millisecond,
	TypeMotorTemperature: 500 * time.Millisecond,
	TypeBattery:          500 * time.Millisecond,
	TypePWM:              500 * time.Millisecond,
	TypeWheel:            500 * time.Millisecond,
}

// Config is the exhaustive 18-field alarm configuration.
type Config struct {
	PwmBasedAlarms bool

	AlarmFactor1, AlarmFactor2 float64 // PWM fractions 0..100
	WarningPwm                 float64
	WarningSpeed               float64
	WarningSpeedPeriod         time.Duration

	Alarm1Speed, Alarm1Battery float64
	Alarm2Speed, Alarm2Battery float64
	Alarm3Speed, Alarm3Battery float64

	AlarmCurrent        float64
	AlarmPhaseCurrent   float64
	AlarmTemperature    float64
	AlarmMotorTemperature float64
	AlarmBattery        float64
	AlarmWheel          bool
}

// Triggered is one fired alarm.
type Triggered struct {
	Type           Type
	Value          float64
	Threshold      float64
	ToneDurationMs int
}

// PreWarning is a softer, more frequent heads-up than a full alarm.
type PreWarning struct {
	Type  Type
	Value float64
}

// Result is the AlarmChecker's per-evaluation output.
type Result struct {
	Triggered    []Triggered
	PreWarning   *PreWarning
	AlarmBitmask uint32
}

// Checker holds the per-type cooldown and pre-warning-period state across
// evaluations; one Checker is owned per connection.
type Checker struct {
	lastFired      map[Type]time.Time
	lastPreWarning map[Type]time.Time
}

func NewChecker() *Checker {
	return &Checker{
		lastFired:      make(map[Type]time.Time),
		lastPreWarning: make(map[Type]time.Time),
	}
}

// Evaluate inspects state against cfg at monotonic time now.
func (c *Checker) Evaluate(state *wheel.WheelState, cfg Config, now time.Time) Result {
	var res Result

	fire := func(t Type, value, threshold float64, toneMs int, bit uint32) {
		if !c.readyToFire(t, now) {
			return
		}
		c.lastFired[t] = now
		res.Triggered = append(res.Triggered, Triggered{Type: t, Value: value, Threshold: threshold, ToneDurationMs: toneMs})
		res.AlarmBitmask |= bit
	}

	pwm := state.CalculatedPwm

	if cfg.PwmBasedAlarms {
		if pwm*100 >= cfg.AlarmFactor1 {
			fire(TypePWM, pwm, cfg.AlarmFactor1, ToneDurationMs(pwm, cfg.AlarmFactor1, cfg.AlarmFactor2), BitPWM)
		}
	} else {
		c.evaluateSpeedTiers(state, cfg, fire)
	}

	if cfg.AlarmCurrent > 0 && math.Abs(float64(state.Current)/100) >= cfg.AlarmCurrent {
		fire(TypeCurrent, float64(state.Current)/100, cfg.AlarmCurrent, 500, BitCurrent)
	}
	if cfg.AlarmPhaseCurrent > 0 && math.Abs(float64(state.PhaseCurrent)/100) >= cfg.AlarmPhaseCurrent {
		fire(TypePhaseCurrent, float64(state.PhaseCurrent)/100, cfg.AlarmPhaseCurrent, 500, BitCurrent)
	}
	if cfg.AlarmTemperature > 0 && float64(state.Temperature)/100 >= cfg.AlarmTemperature {
		fire(TypeTemperature, float64(state.Temperature)/100, cfg.AlarmTemperature, 500, BitTemperature)
	}
	if cfg.AlarmMotorTemperature > 0 && float64(state.Temperature2)/100 >= cfg.AlarmMotorTemperature {
		fire(TypeMotorTemperature, float64(state.Temperature2)/100, cfg.AlarmMotorTemperature, 500, BitTemperature)
	}
	if cfg.AlarmBattery > 0 && float64(state.BatteryLevel) < cfg.AlarmBattery {
		fire(TypeBattery, float64(state.BatteryLevel), cfg.AlarmBattery, 500, BitBattery)
	}
	if cfg.AlarmWheel && state.WheelAlarm {
		fire(TypeWheel, 1, 1, 500, BitWheel)
	}

	res.PreWarning = c.evaluatePreWarning(state, cfg, now)
	return res
}

func (c *Checker) readyToFire(t Type, now time.Time) bool {
	last, ok := c.lastFired[t]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldowns[t]
}

// evaluateSpeedTiers applies the old-style speed/battery tiers with
// highest-tier precedence.
func (c *Checker) evaluateSpeedTiers(state *wheel.WheelState, cfg Config, fire func(Type, float64, float64, int, uint32)) {
	speed := float64(state.Speed) / 100
	battery := float64(state.BatteryLevel)

	type tier struct {
		t         Type
		bit       uint32
		speedCfg  float64
		battCfg   float64
	}
	tiers := []tier{
		{TypeSpeed3, BitSpeed3, cfg.Alarm3Speed, cfg.Alarm3Battery},
		{TypeSpeed2, BitSpeed2, cfg.Alarm2Speed, cfg.Alarm2Battery},
		{TypeSpeed1, BitSpeed1, cfg.Alarm1Speed, cfg.Alarm1Battery},
	}
	for _, tr := range tiers {
		if tr.speedCfg <= 0 {
			continue
		}
		if speed >= tr.speedCfg && battery <= tr.battCfg {
			fire(tr.t, speed, tr.speedCfg, 500, tr.bit)
			return // highest qualifying tier wins
		}
	}
}

func (c *Checker) evaluatePreWarning(state *wheel.WheelState, cfg Config, now time.Time) *PreWarning {
	check := func(t Type, crossed bool, value float64) *PreWarning {
		if !crossed {
			return nil
		}
		last, ok := c.lastPreWarning[t]
		if ok && now.Sub(last) < cfg.WarningSpeedPeriod {
			return nil
		}
		c.lastPreWarning[t] = now
		return &PreWarning{Type: t, Value: value}
	}

	if cfg.WarningPwm > 0 && state.CalculatedPwm >= cfg.WarningPwm {
		if pw := check(TypePWM, true, state.CalculatedPwm); pw != nil {
			return pw
		}
	}
	if cfg.WarningSpeed > 0 {
		speed := float64(state.Speed) / 100
		if pw := check(TypeSpeed1, speed >= cfg.WarningSpeed, speed); pw != nil {
			return pw
		}
	}
	return nil
}

// ToneDurationMs implements the PWM alarm curve:
//
//	t = clamp((pwm*100 - factor1) / max(factor2-factor1, 1), 0, 1)
//	tone_duration_ms = round(20 + 180*t)
func ToneDurationMs(pwm, factor1, factor2 float64) int {
	denom := factor2 - factor1
	if denom < 1 {
		denom = 1
	}
	t := (pwm*100 - factor1) / denom
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return int(math.Round(20 + 180*t))
}
