package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel"
)

func TestAutoDetect_LocksOntoGotwayHeader(t *testing.T) {
	a := NewAutoDetect()
	state := wheel.NewWheelState()
	frame := buildGotwayFrame(6500, 200, 100, 50, 2000, gwSubframeLive, 0)

	dd, err := a.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, wheel.WheelTypeGotway, dd.NewState.WheelType)
}

func TestAutoDetect_LocksOntoVeteranHeader(t *testing.T) {
	a := NewAutoDetect()
	state := wheel.NewWheelState()
	frame := buildVeteranFrame(6700, 150, 500, 100, 2200)

	dd, err := a.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, wheel.WheelTypeVeteran, dd.NewState.WheelType)
}

func TestAutoDetect_WaitsForMoreDataOnAmbiguousPrefix(t *testing.T) {
	a := NewAutoDetect()
	state := wheel.NewWheelState()

	dd, err := a.Decode([]byte{0x55}, state, Config{})
	require.NoError(t, err)
	assert.Nil(t, dd)
}

func TestAutoDetect_ResetClearsDetection(t *testing.T) {
	a := NewAutoDetect()
	state := wheel.NewWheelState()
	frame := buildGotwayFrame(6500, 200, 100, 50, 2000, gwSubframeLive, 0)
	_, _ = a.Decode(frame, state, Config{})
	require.True(t, a.IsReady())

	a.Reset()
	assert.False(t, a.IsReady())
}
