package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/config"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/learning"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/notifications"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/store"
)

func testConfig(mode string) *config.Config {
	return &config.Config{
		EntryID:                    "test",
		TargetTemperature:          22.0,
		TemperatureDeadband:        0.5,
		HVACMode:                   mode,
		ACTurnOnThreshold:          1.0,
		ACTurnOffThreshold:         0.5,
		MainFanHighThreshold:       2.0,
		MainFanMedThreshold:        1.0,
		OvershootTier1:             1.0,
		OvershootTier2:             1.5,
		OvershootTier3:             2.0,
		EnableFanSmoothing:         true,
		SmoothingFactor:            0.7,
		SmoothingThreshold:         10,
		EnableRoomBalancing:        true,
		TargetRoomVariance:         1.0,
		BalancingAggressiveness:    5.0,
		MinAirflowPercent:          10,
		WeatherInfluenceFactor:     1.0,
		ModeHysteresisMinutes:      15,
		ModeHysteresisMargin:       0.5,
		ModeMinCycleCount:          3,
		EnableCompressorProtection: true,
		CompressorMinOnSeconds:     180,
		CompressorMinOffSeconds:    300,
		PredictiveLookaheadMinutes: 10,
		PredictiveBoostFactor:      0.5,
		EnableOccupancyControl:     true,
		VacantRoomSetback:          2.0,
	}
}

func testManager(t *testing.T, mode string) *Manager {
	t.Helper()
	cfg := testConfig(mode)
	st := store.New(t.TempDir())
	lm := learning.NewManager("test", st)
	return New(cfg, nil, lm, notifications.New(nil, false), st, nil)
}

func TestCalculateFanSpeedDeadband(t *testing.T) {
	m := testManager(t, "cool")

	assert.Equal(t, 50, m.calculateFanSpeed(0.0, 0.0))
	assert.Equal(t, 50, m.calculateFanSpeed(0.5, 0.5))
	assert.Equal(t, 50, m.calculateFanSpeed(-0.5, 0.5))
}

func TestCalculateFanSpeedCoolDemand(t *testing.T) {
	m := testManager(t, "cool")

	cases := []struct {
		diff float64
		want int
	}{
		{0.6, 55},
		{1.0, 60},
		{1.5, 65},
		{2.0, 75},
		{3.0, 90},
		{4.0, 100},
		{6.5, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.calculateFanSpeed(tc.diff, tc.diff), "diff=%.1f", tc.diff)
	}
}

func TestCalculateFanSpeedCoolOvershoot(t *testing.T) {
	m := testManager(t, "cool")

	cases := []struct {
		overshoot float64
		want      int
	}{
		{0.6, 35},
		{0.7, 30},
		{1.0, 22},
		{1.5, 12},
		{2.0, 5},
		{3.5, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.calculateFanSpeed(-tc.overshoot, tc.overshoot), "overshoot=%.1f", tc.overshoot)
	}
}

func TestCalculateFanSpeedHeatMirrors(t *testing.T) {
	cool := testManager(t, "cool")
	heat := testManager(t, "heat")

	for _, diff := range []float64{0.3, 0.6, 1.0, 1.5, 2.2, 3.1, 4.5} {
		assert.Equal(t,
			cool.calculateFanSpeed(diff, diff),
			heat.calculateFanSpeed(-diff, diff),
			"demand side diff=%.1f", diff)
		assert.Equal(t,
			cool.calculateFanSpeed(-diff, diff),
			heat.calculateFanSpeed(diff, diff),
			"overshoot side diff=%.1f", diff)
	}
}

func TestCalculateFanSpeedMonotonicInCoolMode(t *testing.T) {
	m := testManager(t, "cool")

	prev := -1
	for diff := -3.0; diff <= 5.0; diff += 0.1 {
		speed := m.calculateFanSpeed(diff, abs(diff))
		if prev >= 0 {
			assert.GreaterOrEqual(t, speed, prev, "fan speed must not drop as diff rises (diff=%.1f)", diff)
		}
		// deadband sits between the overshoot and demand ladders
		if abs(diff) > m.cfg.TemperatureDeadband {
			prev = speed
		}
	}
}

func TestCalculateFanSpeedAutoModeFollowsLastMode(t *testing.T) {
	m := testManager(t, "auto")

	// last active mode was cooling: above-target demand, below-target overshoot
	m.lastHVACMode = model.ModeCool
	assert.Equal(t, 50, m.calculateFanSpeed(0.2, 0.2))
	assert.Equal(t, 60, m.calculateFanSpeed(1.0, 1.0))
	assert.Equal(t, 75, m.calculateFanSpeed(2.5, 2.5))
	assert.Equal(t, 100, m.calculateFanSpeed(4.2, 4.2))
	assert.Equal(t, 5, m.calculateFanSpeed(-2.5, 2.5))

	// last active mode was heating: the directions flip
	m.lastHVACMode = model.ModeHeat
	assert.Equal(t, 75, m.calculateFanSpeed(-2.5, 2.5))
	assert.Equal(t, 5, m.calculateFanSpeed(2.5, 2.5))
}

func TestCalculateFanSpeedAutoModeOvershootThrottles(t *testing.T) {
	m := testManager(t, "auto")
	m.lastHVACMode = model.ModeCool

	// overcooled room in auto must get reduced airflow, never a boost
	assert.LessOrEqual(t, m.calculateFanSpeed(-2.0, 2.0), 50)
}

func TestSmoothFanSpeedFirstCallPassesThrough(t *testing.T) {
	m := testManager(t, "cool")

	assert.Equal(t, 75, m.smoothFanSpeed("living", 75))
	assert.Equal(t, 75, m.lastFanSpeeds["living"])
}

func TestSmoothFanSpeedSmallDeltaSmoothed(t *testing.T) {
	m := testManager(t, "cool")
	m.lastFanSpeeds["living"] = 50

	// delta 8 is within the threshold of 10: 0.7*58 + 0.3*50 = 55.6 -> 56
	assert.Equal(t, 56, m.smoothFanSpeed("living", 58))
	assert.Equal(t, 56, m.lastFanSpeeds["living"])
}

func TestSmoothFanSpeedLargeDeltaUnsmoothed(t *testing.T) {
	m := testManager(t, "cool")
	m.lastFanSpeeds["living"] = 50

	assert.Equal(t, 90, m.smoothFanSpeed("living", 90))
	assert.Equal(t, 90, m.lastFanSpeeds["living"])
}

func TestSmoothFanSpeedStaysWithinEndpoints(t *testing.T) {
	m := testManager(t, "cool")
	m.lastFanSpeeds["living"] = 40

	for _, target := range []int{42, 45, 48, 50} {
		got := m.smoothFanSpeed("living", target)
		assert.GreaterOrEqual(t, got, 40)
		assert.LessOrEqual(t, got, 50)
	}
}

func TestAdaptiveFanSpeedWithoutLearningEqualsLadder(t *testing.T) {
	m := testManager(t, "cool")
	m.learning.Enabled = false

	assert.Equal(t, m.calculateFanSpeed(2.0, 2.0), m.adaptiveFanSpeed("living", 2.0, 2.0))
}

func TestAdaptiveFanSpeedBoundedByMaxAdjustment(t *testing.T) {
	m := testManager(t, "cool")
	m.learning.Enabled = true
	m.learning.Mode = "active"

	// fabricate a confident, very inefficient room
	profile := learning.NewProfile("living")
	profile.Confidence = 1.0
	profile.CoolingEfficiency = 0.1
	m.learning.SetProfile("living", profile)

	base := m.calculateFanSpeed(2.0, 2.0)
	got := m.adaptiveFanSpeed("living", 2.0, 2.0)
	require.NotEqual(t, base, got)
	assert.LessOrEqual(t, got, int(float64(base)*1.11)+1)
}
