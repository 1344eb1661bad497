package optimizer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// decideHVACMode picks the operating mode for the main unit from house-wide
// averages. Mode changes out of a compressor mode (cool/heat/dry) are gated
// by a hysteresis timer and a minimum cycle count; leaving fan_only is
// always immediate since no compressor is running.
func (m *Manager) decideHVACMode(roomStates map[string]model.RoomState, mainACRunning bool) model.HVACMode {
	temps, target := validTemps(roomStates, m.cfg.TargetTemperature)
	if len(temps) == 0 {
		return m.lastHVACMode
	}

	avgDiff := mean(temps) - target

	var humSum float64
	humCount := 0
	for _, state := range roomStates {
		if state.CurrentHumidity != nil {
			humSum += *state.CurrentHumidity
			humCount++
		}
	}

	deadband := m.cfg.TemperatureDeadband
	var candidate model.HVACMode
	switch {
	case avgDiff >= deadband:
		candidate = model.ModeCool
	case avgDiff <= -deadband:
		candidate = model.ModeHeat
	default:
		if humCount > 0 && humSum/float64(humCount) > m.cfg.HumidityThreshold {
			candidate = model.ModeDry
		} else {
			candidate = model.ModeFanOnly
		}
	}

	if candidate == m.lastHVACMode || m.lastHVACMode == "" {
		if m.lastHVACMode == "" {
			m.lastHVACMode = candidate
			m.lastModeChange = m.now()
		}
		m.compressorModeCycles++
		return m.lastHVACMode
	}

	if m.lastHVACMode != model.ModeFanOnly {
		held := m.now().Sub(m.lastModeChange)
		minHold := time.Duration(m.cfg.ModeHysteresisMinutes * float64(time.Minute))
		holding := held < minHold || m.compressorModeCycles < m.cfg.ModeMinCycleCount

		// a deviation past deadband+margin means the current mode is actively
		// working against the house; the hold yields to it
		urgent := abs(avgDiff) > deadband+m.cfg.ModeHysteresisMargin

		if holding && !urgent {
			log.Debug().
				Str("current", string(m.lastHVACMode)).
				Str("candidate", string(candidate)).
				Dur("held", held).
				Int("cycles", m.compressorModeCycles).
				Msg("Holding HVAC mode - hysteresis")
			m.compressorModeCycles++
			return m.lastHVACMode
		}
	}

	log.Info().
		Str("from", string(m.lastHVACMode)).
		Str("to", string(candidate)).
		Float64("avg_diff", avgDiff).
		Msg("HVAC mode change")
	m.lastHVACMode = candidate
	m.lastModeChange = m.now()
	m.compressorModeCycles = 0
	return candidate
}

func (m *Manager) applyModeDecision(ctx context.Context, mode model.HVACMode) {
	if m.manualOverride {
		return
	}

	err := m.ha.CallServiceWithRetry(ctx, "climate", "set_hvac_mode", map[string]any{
		"entity_id": m.cfg.MainClimateEntity,
		"hvac_mode": string(mode),
	}, "HVAC Mode ("+m.cfg.MainClimateEntity+")")
	if err != nil {
		m.lastError = err.Error()
		m.errorCount++
		return
	}
	log.Info().Str("mode", string(mode)).Msg("Applied HVAC mode decision")
}

// isCompressorProtected reports whether toggling the main unit now would
// short-cycle the compressor. Timestamps survive restarts via the state
// store.
func (m *Manager) isCompressorProtected() bool {
	if !m.cfg.EnableCompressorProtection {
		return false
	}

	now := m.now()
	if !m.acLastTurnedOn.IsZero() {
		if since := now.Sub(m.acLastTurnedOn); since < time.Duration(m.cfg.CompressorMinOnSeconds*float64(time.Second)) {
			log.Debug().Dur("since_on", since).Msg("Compressor minimum on-time not elapsed")
			return true
		}
	}
	if !m.acLastTurnedOff.IsZero() {
		if since := now.Sub(m.acLastTurnedOff); since < time.Duration(m.cfg.CompressorMinOffSeconds*float64(time.Second)) {
			log.Debug().Dur("since_off", since).Msg("Compressor minimum off-time not elapsed")
			return true
		}
	}
	return false
}

func (m *Manager) compressorStateFile() string {
	return "smart_aircon_manager." + m.cfg.EntryID + ".state.json"
}

func (m *Manager) loadCompressorState() {
	var cs model.CompressorState
	ok, err := m.state.Load(m.compressorStateFile(), &cs)
	if err != nil {
		log.Warn().Err(err).Msg("Could not load compressor state, starting fresh")
		return
	}
	if !ok {
		return
	}
	m.acLastTurnedOn = cs.LastTurnedOn
	m.acLastTurnedOff = cs.LastTurnedOff
	log.Info().
		Time("last_on", cs.LastTurnedOn).
		Time("last_off", cs.LastTurnedOff).
		Msg("Restored compressor state")
}

func (m *Manager) saveCompressorState() {
	cs := model.CompressorState{
		LastTurnedOn:  m.acLastTurnedOn,
		LastTurnedOff: m.acLastTurnedOff,
	}
	if err := m.state.Save(m.compressorStateFile(), &cs); err != nil {
		log.Error().Err(err).Msg("Failed to save compressor state")
	}
}
