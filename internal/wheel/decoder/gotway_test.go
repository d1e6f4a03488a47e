package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel"
	"github.com/eucdash/wheelcore/internal/wheel/bytesutil"
)

func buildGotwayFrame(voltage uint16, speed int16, distance int32, current, temp int16, subType byte, phaseCurrent int16) []byte {
	f := make([]byte, gwFrameLen)
	f[0], f[1] = 0x55, 0xAA
	p := f[2:]
	bytesutil.PutU16BEInto(p, 0, voltage)
	bytesutil.PutU16BEInto(p, 2, uint16(speed))
	bytesutil.PutU32BEInto(p, 4, uint32(distance))
	bytesutil.PutU16BEInto(p, 8, uint16(current))
	bytesutil.PutU16BEInto(p, 10, uint16(temp))
	p[14] = subType
	bytesutil.PutU16BEInto(p, 15, uint16(phaseCurrent))
	f[gwFrameLen-3] = bytesutil.SumLow8(f[2 : gwFrameLen-3])
	f[gwFrameLen-2] = gwFooter1
	f[gwFrameLen-1] = gwFooter2
	return f
}

func TestGotway_DecodesLiveFrame(t *testing.T) {
	g := NewGotway()
	state := wheel.NewWheelState()
	frame := buildGotwayFrame(6500, 200, 12345, 150, 2500, gwSubframeLive, 0)

	dd, err := g.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)

	assert.Equal(t, wheel.WheelTypeGotway, dd.NewState.WheelType)
	assert.Equal(t, int32(6500), dd.NewState.Voltage)
	assert.Equal(t, int32(720), dd.NewState.Speed) // 200*3.6 = 720
	assert.Equal(t, int64(12345), dd.NewState.TotalDistance)
	assert.Equal(t, int32(150), dd.NewState.Current)
	assert.Equal(t, int32(2500), dd.NewState.Temperature)
}

func TestGotway_ExtendedFrameCarriesPhaseCurrent(t *testing.T) {
	g := NewGotway()
	state := wheel.NewWheelState()
	frame := buildGotwayFrame(6500, 200, 12345, 150, 2500, gwSubframeExtended, 300)

	dd, err := g.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, int32(300), dd.NewState.PhaseCurrent)
}

func TestGotway_FlippedChecksumProducesNoStateChange(t *testing.T) {
	g := NewGotway()
	state := wheel.NewWheelState()
	frame := buildGotwayFrame(6500, 200, 12345, 150, 2500, gwSubframeLive, 0)
	frame[gwFrameLen-3] ^= 0xFF

	dd, err := g.Decode(frame, state, Config{})
	require.NoError(t, err)
	assert.Nil(t, dd)
}

func TestGotway_ChunkInvariance(t *testing.T) {
	frame := buildGotwayFrame(6500, 200, 12345, 150, 2500, gwSubframeLive, 0)
	state := wheel.NewWheelState()

	whole := NewGotway()
	ddWhole, _ := whole.Decode(frame, state, Config{})

	chunked := NewGotway()
	var ddChunked *DecodedData
	for i := 0; i < len(frame); i++ {
		got, _ := chunked.Decode(frame[i:i+1], state, Config{})
		if got != nil {
			ddChunked = got
		}
	}

	require.NotNil(t, ddWhole)
	require.NotNil(t, ddChunked)
	assert.Equal(t, ddWhole.NewState.Voltage, ddChunked.NewState.Voltage)
	assert.Equal(t, ddWhole.NewState.Speed, ddChunked.NewState.Speed)
}

func TestGotway_CalibrateIsTwoStepSequence(t *testing.T) {
	g := NewGotway()
	cmds := g.BuildCommand(wheel.Calibrate{})
	require.Len(t, cmds, 2)
	assert.Equal(t, wheel.SendBytes{Payload: []byte("c")}, cmds[0])
	assert.Equal(t, wheel.SendDelayed{Payload: []byte("y"), DelayMs: 300}, cmds[1])
}

func TestGotway_CalibrateIsIdempotent(t *testing.T) {
	g := NewGotway()
	first := g.BuildCommand(wheel.Calibrate{})
	second := g.BuildCommand(wheel.Calibrate{})
	assert.Equal(t, first, second)
}

func buildVeteranFrame(voltage uint16, speed int16, distance int32, current, temp int16) []byte {
	f := make([]byte, gwFrameLen)
	f[0], f[1], f[2] = 0xDC, 0x5A, 0x5C
	p := f[3:]
	bytesutil.PutU16BEInto(p, 0, voltage)
	bytesutil.PutU16BEInto(p, 2, uint16(speed))
	bytesutil.PutU32BEInto(p, 4, uint32(distance))
	bytesutil.PutU16BEInto(p, 8, uint16(current))
	bytesutil.PutU16BEInto(p, 10, uint16(temp))
	p[14] = gwSubframeLive
	crc := bytesutil.VeteranCRC16(f[:gwFrameLen-2])
	bytesutil.PutU16BEInto(f, gwFrameLen-2, crc)
	return f
}

func TestVeteran_CRCVerifiedFrame(t *testing.T) {
	v := NewVeteran()
	state := wheel.NewWheelState()
	frame := buildVeteranFrame(6700, 150, 500, 100, 2200)

	dd, err := v.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, wheel.WheelTypeVeteran, dd.NewState.WheelType)
	assert.Equal(t, int32(6700), dd.NewState.Voltage)
}

func TestVeteran_FlippedCRCByteDropsFrame(t *testing.T) {
	v := NewVeteran()
	state := wheel.NewWheelState()
	frame := buildVeteranFrame(6700, 150, 500, 100, 2200)
	frame[gwFrameLen-1] ^= 0xFF

	dd, err := v.Decode(frame, state, Config{})
	require.NoError(t, err)
	assert.Nil(t, dd)
}
