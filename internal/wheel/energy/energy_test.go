package energy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Property 9 — constant power over a time span within the window.
func TestCalculator_ConstantPowerMatchesClosedForm(t *testing.T) {
	c := NewCalculator()
	base := time.Now()
	const power = 500.0 // W
	const rate = 5.0     // m/s

	for i := 0; i <= 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		c.PushSample(power, rate*float64(i), at)
	}

	now := base.Add(5 * time.Second)
	deltaT := 5.0 // seconds
	wantWh := power * deltaT / 3600.0
	gotWh := c.PowerHour(now)
	assert.InDelta(t, wantWh, gotWh, 1e-6)

	deltaD := rate * 5.0
	wantWhPerKm := wantWh * 1000 / deltaD
	assert.InDelta(t, wantWhPerKm, c.WhPerKm(now), 1e-6)
}

func TestCalculator_FewerThanTwoSamplesReturnsZero(t *testing.T) {
	c := NewCalculator()
	now := time.Now()
	c.PushSample(500, 10, now)
	assert.Equal(t, 0.0, c.PowerHour(now))
	assert.Equal(t, 0.0, c.WhPerKm(now))
}

func TestCalculator_ZeroDistanceDeltaYieldsZeroWhPerKm(t *testing.T) {
	c := NewCalculator()
	now := time.Now()
	c.PushSample(500, 10, now)
	c.PushSample(500, 10, now.Add(time.Second))
	assert.Greater(t, c.PowerHour(now.Add(time.Second)), 0.0)
	assert.Equal(t, 0.0, c.WhPerKm(now.Add(time.Second)))
}

func TestCalculator_SamplesOlderThanWindowArePruned(t *testing.T) {
	c := NewCalculator()
	base := time.Now()
	c.PushSample(500, 0, base)
	c.PushSample(500, 10, base.Add(20*time.Second)) // 20s later: prunes the first sample out
	// Only one sample remains after prune -> below-threshold.
	assert.Equal(t, 0.0, c.PowerHour(base.Add(20*time.Second)))
}

func TestCalculator_CachesWithinOneSecond(t *testing.T) {
	c := NewCalculator()
	now := time.Now()
	c.PushSample(500, 0, now)
	c.PushSample(1000, 10, now.Add(time.Second))

	first := c.PowerHour(now.Add(time.Second))
	// A query 300ms later, with no new pushes, must return the identical
	// cached value even though nothing changed to invalidate it.
	second := c.PowerHour(now.Add(1300 * time.Millisecond))
	assert.Equal(t, first, second)
}
