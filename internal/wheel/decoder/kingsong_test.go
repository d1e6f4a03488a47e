package decoder

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eucdash/wheelcore/internal/wheel"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestKingsong_NameModelVersion(t *testing.T) {
	k := NewKingsong()
	state := wheel.NewWheelState()

	frame := mustHex(t, "aa554b532d5331382d30323035000000bb1484fd")
	dd, err := k.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)

	assert.Equal(t, "KS-S18-0205", dd.NewState.Name)
	assert.Equal(t, "KS-S18", dd.NewState.Model)
	assert.Equal(t, "2.05", dd.NewState.Version)
	assert.True(t, k.IsReady())
}

func TestKingsong_LiveDataFrame(t *testing.T) {
	k := NewKingsong()
	state := wheel.NewWheelState()

	frame := mustHex(t, "aa556919030200009f36d700140500e0a9145a5a")
	dd, err := k.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)

	assert.Equal(t, int32(6505), dd.NewState.Voltage)
	assert.Equal(t, int32(515), dd.NewState.Speed)
	assert.Equal(t, int32(1300), dd.NewState.Temperature)
	assert.Equal(t, int32(12), dd.NewState.BatteryLevel)
}

func TestKingsong_DistanceFrame(t *testing.T) {
	k := NewKingsong()
	state := wheel.NewWheelState()

	frame := mustHex(t, "aa550000090017011502140100004006b9145a5a")
	dd, err := k.Decode(frame, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)

	assert.Equal(t, int64(9), dd.NewState.WheelDistance)
}

func TestKingsong_FramesSplitAcrossChunksAssembleCorrectly(t *testing.T) {
	k := NewKingsong()
	state := wheel.NewWheelState()
	frame := mustHex(t, "aa556919030200009f36d700140500e0a9145a5a")

	var dd *DecodedData
	for i := 0; i < len(frame); i++ {
		got, err := k.Decode(frame[i:i+1], state, Config{})
		require.NoError(t, err)
		if got != nil {
			dd = got
		}
	}
	require.NotNil(t, dd)
	assert.Equal(t, int32(6505), dd.NewState.Voltage)
}

func TestKingsong_BmsPagesAssembleAcrossSevenFrames(t *testing.T) {
	k := NewKingsong()
	state := wheel.NewWheelState()

	frame := func(page byte) []byte {
		f := make([]byte, ksFrameLen)
		f[0], f[1] = ksHeaderLo, ksHeaderHi
		f[2] = page
		f[ksTypeOffset] = ksTypeBms1
		return f
	}

	var dd *DecodedData
	for page := byte(0); page <= 6; page++ {
		got, err := k.Decode(frame(page), state, Config{})
		require.NoError(t, err)
		if got != nil {
			dd = got
		}
	}
	require.NotNil(t, dd, "BMS1 should flush once all 7 pages are seen")
	assert.NotNil(t, dd.NewState.BMS1)
}

func TestKingsong_GarbagePrefixResyncsOnHeader(t *testing.T) {
	k := NewKingsong()
	state := wheel.NewWheelState()
	frame := mustHex(t, "aa556919030200009f36d700140500e0a9145a5a")
	noisy := append([]byte{0x00, 0xAA, 0x11}, frame...)

	dd, err := k.Decode(noisy, state, Config{})
	require.NoError(t, err)
	require.NotNil(t, dd)
	assert.Equal(t, int32(515), dd.NewState.Speed)
}
