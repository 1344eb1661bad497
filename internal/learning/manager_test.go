package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/store"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager("entry1", store.New(t.TempDir()))
}

func TestShouldApplyGates(t *testing.T) {
	m := testManager(t)

	profile := NewProfile("living")
	profile.Confidence = 0.9
	m.SetProfile("living", profile)

	// disabled
	assert.False(t, m.ShouldApply("living"))

	// enabled but passive
	m.Enabled = true
	assert.False(t, m.ShouldApply("living"))

	// active and confident
	m.Mode = "active"
	assert.True(t, m.ShouldApply("living"))

	// active but below the confidence threshold
	profile.Confidence = 0.3
	assert.False(t, m.ShouldApply("living"))

	// no profile at all
	assert.False(t, m.ShouldApply("bedroom"))
}

func TestSaveAndLoadState(t *testing.T) {
	st := store.New(t.TempDir())
	m := NewManager("entry1", st)
	m.Enabled = true

	profile := NewProfile("living")
	profile.Confidence = 0.8
	profile.ThermalMass = 0.7
	m.SetProfile("living", profile)

	after := 22.0
	m.Tracker.TrackCycle("living", 23.0, &after, 60, 22.0, 120)
	m.SaveState()

	restored := NewManager("entry1", st)
	restored.LoadState()

	got := restored.Profile("living")
	require.NotNil(t, got)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, 0.7, got.ThermalMass)
	assert.Equal(t, 1, restored.Tracker.DataPointCount("living"))
}

func TestLoadStateMissingFilesIsClean(t *testing.T) {
	m := testManager(t)
	m.LoadState()
	assert.Empty(t, m.Profiles())
}

func TestStateFilesAreScopedByEntryID(t *testing.T) {
	st := store.New(t.TempDir())
	first := NewManager("entry1", st)
	first.SetProfile("living", NewProfile("living"))
	first.SaveState()

	other := NewManager("entry2", st)
	other.LoadState()
	assert.Empty(t, other.Profiles())
}

func TestResetSingleRoom(t *testing.T) {
	m := testManager(t)
	m.SetProfile("living", NewProfile("living"))
	m.SetProfile("bedroom", NewProfile("bedroom"))

	after := 22.0
	m.Tracker.TrackCycle("living", 23.0, &after, 60, 22.0, 120)

	m.Reset("living")
	assert.Nil(t, m.Profile("living"))
	assert.NotNil(t, m.Profile("bedroom"))
	assert.Equal(t, 0, m.Tracker.DataPointCount("living"))
}

func TestResetAll(t *testing.T) {
	m := testManager(t)
	m.SetProfile("living", NewProfile("living"))
	m.SetProfile("bedroom", NewProfile("bedroom"))

	m.Reset("")
	assert.Empty(t, m.Profiles())
}

// seedConverging writes a slowly converging history dense enough for every
// estimator: constant fan speed, temperature closing on target each cycle.
func seedConverging(tr *Tracker, room string, n int) {
	temp := 25.0
	for i := 0; i < n; i++ {
		after := temp - 0.05
		tr.TrackCycle(room, temp, &after, 100, 22.0, 120)
		temp -= 0.05
		if temp < 22.2 {
			temp = 25.0
		}
	}
}

func TestUpdateProfilesCreatesLazily(t *testing.T) {
	m := testManager(t)
	m.Enabled = true
	m.Tracker.now = func() time.Time { return time.Now() }

	seedConverging(m.Tracker, "living", 60)

	updated := m.UpdateProfiles()
	assert.Contains(t, updated, "living")

	profile := m.Profile("living")
	require.NotNil(t, profile)
	assert.InDelta(t, 0.3, profile.Confidence, 0.001) // 60/200
}

func TestProfileConfidenceCapsAtOne(t *testing.T) {
	m := testManager(t)

	seedConverging(m.Tracker, "living", 250)

	profile := NewProfile("living")
	require.True(t, profile.UpdateFromTracker(m.Tracker))
	assert.Equal(t, 1.0, profile.Confidence)
}

func TestProfileSmoothingNudgesBounded(t *testing.T) {
	profile := NewProfile("living")

	// simulate many oscillation-driven nudges upward
	for i := 0; i < 20; i++ {
		profile.OptimalSmoothingFactor = minf(0.85, profile.OptimalSmoothingFactor+0.05)
		profile.OptimalSmoothingThreshold = mini(15, profile.OptimalSmoothingThreshold+2)
	}
	assert.Equal(t, 0.85, profile.OptimalSmoothingFactor)
	assert.Equal(t, 15, profile.OptimalSmoothingThreshold)

	for i := 0; i < 20; i++ {
		profile.OptimalSmoothingFactor = maxf(0.6, profile.OptimalSmoothingFactor-0.05)
		profile.OptimalSmoothingThreshold = maxi(5, profile.OptimalSmoothingThreshold-2)
	}
	assert.Equal(t, 0.6, profile.OptimalSmoothingFactor)
	assert.Equal(t, 5, profile.OptimalSmoothingThreshold)
}
