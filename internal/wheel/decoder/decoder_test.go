package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKingsongBatteryPercent_ClampsOutOfRange(t *testing.T) {
	assert.Equal(t, int32(0), kingsongBatteryPercent(6000, 6300, 8400))
	assert.Equal(t, int32(100), kingsongBatteryPercent(9000, 6300, 8400))
}

func TestKingsongBatteryPercent_NonLinearMidCurve(t *testing.T) {
	// 65.05V on a default 63.00V..84.00V pack sits in the steep knee near
	// the cutoff, above what a straight-line interpolation would give.
	assert.Equal(t, int32(12), kingsongBatteryPercent(6505, 6300, 8400))
	assert.Greater(t, kingsongBatteryPercent(6505, 6300, 8400), batteryPercentFromVoltage(6505, 6300, 8400))
}

func TestBatteryPercentFromVoltage_LinearClamped(t *testing.T) {
	assert.Equal(t, int32(0), batteryPercentFromVoltage(5000, 5000, 6700))
	assert.Equal(t, int32(100), batteryPercentFromVoltage(6700, 5000, 6700))
	assert.Equal(t, int32(50), batteryPercentFromVoltage(5850, 5000, 6700))
}
