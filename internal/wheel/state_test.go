package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWheelState_DefaultsUnknownIntsToMinusOne(t *testing.T) {
	s := NewWheelState()
	assert.Equal(t, int32(-1), s.PedalsMode)
	assert.Equal(t, int32(-1), s.LightMode)
	assert.Equal(t, int32(-1), s.LedMode)
	assert.Equal(t, int32(-1), s.RollAngle)
	assert.Equal(t, int32(-1), s.SpeedAlarms)
	assert.Equal(t, int32(-1), s.TiltBackSpeed)
	assert.Equal(t, int32(-1), s.CutoutAngle)
	assert.False(t, s.WheelAlarm)
	assert.Equal(t, WheelTypeUnknown, s.WheelType)
}

func TestClone_IsIndependentCopy(t *testing.T) {
	s := NewWheelState()
	s.Speed = 100
	cp := s.Clone()
	cp.Speed = 200
	assert.Equal(t, int32(100), s.Speed)
	assert.Equal(t, int32(200), cp.Speed)
}

func TestClone_NilReceiverReturnsFreshState(t *testing.T) {
	var s *WheelState
	cp := s.Clone()
	assert.Equal(t, int32(-1), cp.PedalsMode)
}

func TestWheelType_String(t *testing.T) {
	assert.Equal(t, "Kingsong", WheelTypeKingsong.String())
	assert.Equal(t, "Unknown", WheelTypeUnknown.String())
}

func TestParseWheelType(t *testing.T) {
	assert.Equal(t, WheelTypeKingsong, ParseWheelType("Kingsong"))
	assert.Equal(t, WheelTypeNinebotZ, ParseWheelType("ninebotz"))
	assert.Equal(t, WheelTypeUnknown, ParseWheelType("not-a-wheel"))
}
