package learning

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/store"
)

// Manager owns the tracker, the per-room profiles and their persistence.
// Learning is opt-in: disabled managers still answer queries but never
// influence the optimizer.
type Manager struct {
	Tracker *Tracker

	Enabled             bool
	Mode                string // passive (collect only) or active (apply adjustments)
	ConfidenceThreshold float64
	MaxAdjustment       float64

	entryID  string
	store    *store.Store
	profiles map[string]*Profile
}

func NewManager(entryID string, st *store.Store) *Manager {
	return &Manager{
		Tracker:             NewTracker(),
		Mode:                "passive",
		ConfidenceThreshold: 0.7,
		MaxAdjustment:       0.10,
		entryID:             entryID,
		store:               st,
		profiles:            make(map[string]*Profile),
	}
}

func (m *Manager) profilesFile() string {
	return fmt.Sprintf("learning_%s.json", m.entryID)
}

func (m *Manager) trackerFile() string {
	return fmt.Sprintf("tracker_data_%s.json", m.entryID)
}

// LoadState restores profiles and tracker history from disk. Corrupt or
// missing snapshots degrade to empty defaults.
func (m *Manager) LoadState() {
	var profileData map[string]*Profile
	ok, err := m.store.Load(m.profilesFile(), &profileData)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load learning profiles, starting fresh")
	} else if ok {
		m.profiles = profileData
		log.Info().Int("profiles", len(m.profiles)).Msg("Loaded learning profiles")
	}
	if m.profiles == nil {
		m.profiles = make(map[string]*Profile)
	}

	var trackerData map[string][]DataPoint
	ok, err = m.store.Load(m.trackerFile(), &trackerData)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load tracker history, starting fresh")
	} else if ok {
		m.Tracker.Restore(trackerData)
		log.Info().Int("rooms", len(trackerData)).Msg("Loaded tracker history")
	}
}

// SaveState writes both snapshots. Called hourly after profile updates and
// once at shutdown.
func (m *Manager) SaveState() {
	if err := m.store.Save(m.profilesFile(), m.profiles); err != nil {
		log.Error().Err(err).Msg("Failed to save learning profiles")
	} else {
		log.Debug().Int("profiles", len(m.profiles)).Msg("Saved learning profiles")
	}

	if err := m.store.Save(m.trackerFile(), m.Tracker.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to save tracker history")
	}
}

// UpdateProfiles recomputes every room's profile from tracker data, creating
// profiles lazily on first sufficient data. Returns the rooms updated.
func (m *Manager) UpdateProfiles() []string {
	var updated []string

	for _, room := range m.Tracker.Rooms() {
		profile, ok := m.profiles[room]
		if !ok {
			profile = NewProfile(room)
			m.profiles[room] = profile
		}
		if profile.UpdateFromTracker(m.Tracker) {
			updated = append(updated, room)
		}
	}

	if len(updated) > 0 {
		m.SaveState()
	}
	return updated
}

func (m *Manager) Profile(roomName string) *Profile {
	return m.profiles[roomName]
}

// SetProfile installs or replaces a room's profile.
func (m *Manager) SetProfile(roomName string, p *Profile) {
	m.profiles[roomName] = p
}

func (m *Manager) Profiles() map[string]*Profile {
	out := make(map[string]*Profile, len(m.profiles))
	for k, v := range m.profiles {
		out[k] = v
	}
	return out
}

// ShouldApply reports whether learned constants may substitute the defaults
// for a room: learning enabled, in active mode, and confidence at threshold.
func (m *Manager) ShouldApply(roomName string) bool {
	if !m.Enabled || m.Mode != "active" {
		return false
	}
	profile := m.profiles[roomName]
	return profile != nil && profile.Confidence >= m.ConfidenceThreshold
}

// Analysis is the payload returned by the analyze_learning service.
type Analysis struct {
	Enabled             bool                `json:"enabled"`
	Mode                string              `json:"mode"`
	ConfidenceThreshold float64             `json:"confidence_threshold"`
	Profiles            map[string]*Profile `json:"profiles"`
	DataPoints          map[string]int      `json:"data_points"`
}

func (m *Manager) Analyze() Analysis {
	counts := make(map[string]int)
	for _, room := range m.Tracker.Rooms() {
		counts[room] = m.Tracker.DataPointCount(room)
	}
	return Analysis{
		Enabled:             m.Enabled,
		Mode:                m.Mode,
		ConfidenceThreshold: m.ConfidenceThreshold,
		Profiles:            m.Profiles(),
		DataPoints:          counts,
	}
}

// Reset clears profiles and history for one room, or everything when room is
// empty, and persists the cleared state.
func (m *Manager) Reset(roomName string) {
	if roomName == "" {
		m.Tracker.ClearAll()
		m.profiles = make(map[string]*Profile)
	} else {
		m.Tracker.ClearRoom(roomName)
		delete(m.profiles, roomName)
	}
	m.SaveState()
}
