package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeatherAdjustedTargetBands(t *testing.T) {
	m := testManager(t, "cool")

	cases := []struct {
		outdoor float64
		want    float64
	}{
		{35.0, 21.5}, // very hot: -0.5
		{27.0, 21.8}, // hot: -0.25
		{22.0, 22.0}, // mild: unchanged
		{18.0, 22.3}, // cool: +0.25
		{10.0, 22.5}, // cold: +0.5
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, m.weatherAdjustedTarget(22.0, tc.outdoor), 0.001, "outdoor=%.1f", tc.outdoor)
	}
}

func TestWeatherAdjustedTargetScalesWithInfluence(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.WeatherInfluenceFactor = 2.0

	assert.InDelta(t, 21.0, m.weatherAdjustedTarget(22.0, 35.0), 0.001)
}

func TestWeatherAdjustedTargetRoundsToOneDecimal(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.WeatherInfluenceFactor = 0.33

	got := m.weatherAdjustedTarget(22.0, 35.0)
	assert.InDelta(t, 21.8, got, 0.001) // 22 - 0.165 = 21.835 -> 21.8
}
