package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel"
)

func TestInMotionV2_MainInfoSetsModelBeforeLiveFramesParse(t *testing.T) {
	v := NewInMotionV2()
	state := wheel.NewWheelState()

	live := buildNordicFrame(0x00, 0x65, make([]byte, 20))
	dd, err := v.Decode(live, state, Config{})
	require.NoError(t, err)
	assert.Nil(t, dd, "live frame before model id must yield no data")

	mainInfo := buildNordicFrame(0x00, 0x63, []byte{0x01, 3, 0}) // series=3,type=0 -> V13
	dd, err = v.Decode(mainInfo, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, "V13", dd.NewState.Model)
	assert.True(t, v.IsReady())

	dd, err = v.Decode(live, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
}

func TestInMotionV2_RealtimeFrameFields(t *testing.T) {
	v := NewInMotionV2()
	state := wheel.NewWheelState()
	mainInfo := buildNordicFrame(0x00, 0x63, []byte{0x01, 3, 0})
	_, err := v.Decode(mainInfo, state, Config{})
	require.NoError(t, err)

	data := make([]byte, 20)
	data[0], data[1] = 0x88, 0x19 // voltage LE
	data[10] = 176               // temperature raw: 176+80-256 = 0
	live := buildNordicFrame(0x00, 0x65, data)

	dd, err := v.Decode(live, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, int32(0x1988), dd.NewState.Voltage)
	assert.Equal(t, int32(0), dd.NewState.Temperature)
}

func TestInMotionV2_AlertStringFromErrorBitfield(t *testing.T) {
	v := NewInMotionV2()
	state := wheel.NewWheelState()
	mainInfo := buildNordicFrame(0x00, 0x63, []byte{0x01, 3, 0})
	_, err := v.Decode(mainInfo, state, Config{})
	require.NoError(t, err)

	data := make([]byte, 27)
	data[20] = 0x01 // iPhaseSensor
	live := buildNordicFrame(0x00, 0x65, data)

	dd, err := v.Decode(live, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Contains(t, dd.NewState.Alert, "iPhaseSensor")
}

// S3: Nordic-UART escape round-trip using an InMotion V2 message.
func TestInMotionV2_EscapeRoundTrip(t *testing.T) {
	payload := []byte{0xAA, 0xA5, 0x10, 0xAA, 0xAA}
	built := buildNordicFrame(0x00, 0x99, payload)

	f := newNordicFramer()
	frames := f.Feed(built)
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0][5:])
}

func TestInMotionV2_BuildCommandIsIdempotent(t *testing.T) {
	v := NewInMotionV2()
	first := v.BuildCommand(wheel.Beep{})
	second := v.BuildCommand(wheel.Beep{})
	assert.Equal(t, first, second)
}
