package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eucdash/wheelcore/internal/wheel"
)

// S4 — PWM alarm curve end-points.
func TestToneDurationMs_Endpoints(t *testing.T) {
	assert.Equal(t, 20, ToneDurationMs(0.80, 80, 95))
	assert.Equal(t, 200, ToneDurationMs(0.95, 80, 95))
	assert.InDelta(t, 110, ToneDurationMs(0.875, 80, 95), 1)
}

// Property 8 — PWM tone monotone and clamped.
func TestToneDurationMs_MonotonicAndClamped(t *testing.T) {
	factor1, factor2 := 80.0, 95.0
	prev := -1
	for pwm := 0.80; pwm <= 0.95; pwm += 0.005 {
		d := ToneDurationMs(pwm, factor1, factor2)
		assert.GreaterOrEqual(t, d, prev)
		assert.GreaterOrEqual(t, d, 20)
		assert.LessOrEqual(t, d, 200)
		prev = d
	}
}

// Property 7 — alarm throttle.
func TestChecker_ThrottleSuppressesRefireWithinCooldown(t *testing.T) {
	c := NewChecker()
	cfg := Config{AlarmBattery: 20}
	state := wheel.NewWheelState()
	state.BatteryLevel = 10

	now := time.Now()
	r1 := c.Evaluate(state, cfg, now)
	assert.Len(t, r1.Triggered, 1)

	r2 := c.Evaluate(state, cfg, now.Add(100*time.Millisecond))
	assert.Empty(t, r2.Triggered, "still within cooldown window")

	r3 := c.Evaluate(state, cfg, now.Add(600*time.Millisecond))
	assert.Len(t, r3.Triggered, 1, "cooldown elapsed, qualifying condition still true")
}

func TestChecker_SpeedTierPrecedenceHighestWins(t *testing.T) {
	c := NewChecker()
	cfg := Config{
		Alarm1Speed: 10, Alarm1Battery: 100,
		Alarm2Speed: 20, Alarm2Battery: 100,
		Alarm3Speed: 30, Alarm3Battery: 100,
	}
	state := wheel.NewWheelState()
	state.Speed = 3500 // 35 km/h
	state.BatteryLevel = 50

	r := c.Evaluate(state, cfg, time.Now())
	if assert.Len(t, r.Triggered, 1) {
		assert.Equal(t, TypeSpeed3, r.Triggered[0].Type)
	}
	assert.Equal(t, BitSpeed3, r.AlarmBitmask)
}

func TestChecker_BitmaskCombinesConcurrentAlarmTypes(t *testing.T) {
	c := NewChecker()
	cfg := Config{AlarmBattery: 20, AlarmCurrent: 10}
	state := wheel.NewWheelState()
	state.BatteryLevel = 5
	state.Current = 2000 // 20A

	r := c.Evaluate(state, cfg, time.Now())
	assert.Equal(t, BitBattery|BitCurrent, r.AlarmBitmask)
}

func TestChecker_PreWarningRespectsPeriod(t *testing.T) {
	c := NewChecker()
	cfg := Config{WarningSpeed: 30, WarningSpeedPeriod: 5 * time.Second}
	state := wheel.NewWheelState()
	state.Speed = 3100

	now := time.Now()
	pw1 := c.Evaluate(state, cfg, now).PreWarning
	assert.NotNil(t, pw1)

	pw2 := c.Evaluate(state, cfg, now.Add(1*time.Second)).PreWarning
	assert.Nil(t, pw2)

	pw3 := c.Evaluate(state, cfg, now.Add(6*time.Second)).PreWarning
	assert.NotNil(t, pw3)
}
