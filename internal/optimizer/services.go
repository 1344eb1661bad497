package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/learning"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// ForceOptimize runs a cycle immediately, outside the normal ticker.
func (m *Manager) ForceOptimize(ctx context.Context) *model.CycleResult {
	log.Info().Msg("Force optimize requested")
	return m.Optimize(ctx)
}

// ResetSmoothing drops the per-room fan speed memory so the next cycle
// starts from the raw ladder output.
func (m *Manager) ResetSmoothing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFanSpeeds = map[string]int{}
	log.Info().Msg("Fan speed smoothing state reset")
}

// SetRoomOverride enables or disables automatic control for one room.
func (m *Manager) SetRoomOverride(roomName string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.roomConfig(roomName) == nil {
		return fmt.Errorf("unknown room: %s", roomName)
	}
	m.roomOverrides[roomName] = enabled
	log.Info().Str("room", roomName).Bool("control_enabled", enabled).Msg("Room override updated")
	return nil
}

func (m *Manager) ResetErrorCount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = ""
	m.errorCount = 0
	log.Info().Msg("Error count reset")
}

// SetManualOverride pauses or resumes all decision making and actuation.
func (m *Manager) SetManualOverride(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualOverride = enabled
	log.Info().Bool("enabled", enabled).Msg("Manual override changed")
}

func (m *Manager) ManualOverride() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manualOverride
}

// LastResult returns the most recent cycle result, or nil before the first
// cycle completes.
func (m *Manager) LastResult() *model.CycleResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

// Reload clears derived runtime state and re-reads learning data from disk.
// Room and schedule configuration comes from the config file, which requires
// a process restart to change.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFanSpeeds = map[string]int{}
	m.lastRecommendations = map[string]int{}
	m.tempHistory = map[string][]tempSample{}
	m.lastOptimization = time.Time{}
	m.learning.LoadState()
	log.Info().Msg("Runtime state reloaded")
}

// AnalyzeLearning summarizes what the learning engine has gathered so far.
func (m *Manager) AnalyzeLearning() learning.Analysis {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.learning.Analyze()
}

// ResetLearning wipes learned data for one room, or for every room when
// roomName is empty.
func (m *Manager) ResetLearning(roomName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning.Reset(roomName)
}

func (m *Manager) SetLearningEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning.Enabled = enabled
	m.learning.SaveState()
	log.Info().Bool("enabled", enabled).Msg("Learning engine toggled")
}

// SaveLearningState flushes learning data to disk, used on shutdown.
func (m *Manager) SaveLearningState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learning.SaveState()
}
