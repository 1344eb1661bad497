package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHistory(m *Manager, room string, start time.Time, temps []float64, step time.Duration) {
	for i, temp := range temps {
		at := start.Add(time.Duration(i) * step)
		m.now = func() time.Time { return at }
		m.recordTempHistory(room, temp)
	}
}

func TestTempRateOfChangeNeedsEnoughPoints(t *testing.T) {
	m := testManager(t, "cool")
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	seedHistory(m, "living", start, []float64{24.0, 23.9}, time.Minute)
	assert.Nil(t, m.tempRateOfChange("living"))
}

func TestTempRateOfChangeDetectsCooling(t *testing.T) {
	m := testManager(t, "cool")
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// dropping 0.1°C per minute
	seedHistory(m, "living", start, []float64{24.0, 23.9, 23.8, 23.7, 23.6}, time.Minute)

	rate := m.tempRateOfChange("living")
	require.NotNil(t, rate)
	assert.InDelta(t, -0.1, *rate, 0.01)
}

func TestTempRateOfChangeFiltersOutliers(t *testing.T) {
	m := testManager(t, "cool")
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// one absurd reading in the middle of a steady decline
	seedHistory(m, "living", start,
		[]float64{24.0, 23.9, 23.8, 60.0, 23.7, 23.6, 23.5}, time.Minute)

	rate := m.tempRateOfChange("living")
	require.NotNil(t, rate)
	assert.InDelta(t, -0.083, *rate, 0.02)
}

func TestTempHistoryWindowEviction(t *testing.T) {
	m := testManager(t, "cool")
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	m.now = func() time.Time { return start }
	m.recordTempHistory("living", 24.0)

	later := start.Add(20 * time.Minute)
	m.now = func() time.Time { return later }
	m.recordTempHistory("living", 23.0)

	history := m.tempHistory["living"]
	require.Len(t, history, 1)
	assert.Equal(t, 23.0, history[0].temp)
}

func TestApplyPredictiveAdjustmentBacksOffWhenConverging(t *testing.T) {
	m := testManager(t, "cool")
	start := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	// cooling fast toward target: predicted position is past target
	seedHistory(m, "living", start, []float64{24.0, 23.5, 23.0, 22.5}, time.Minute)

	base := m.calculateFanSpeed(0.5, 0.5)
	adjusted := m.applyPredictiveAdjustment("living", base, 22.5, 22.0)
	assert.Less(t, adjusted, base)
}

func TestApplyPredictiveAdjustmentNoHistoryNoChange(t *testing.T) {
	m := testManager(t, "cool")

	assert.Equal(t, 60, m.applyPredictiveAdjustment("living", 60, 23.0, 22.0))
}
