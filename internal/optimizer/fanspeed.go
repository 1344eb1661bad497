package optimizer

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/learning"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// calculateFanSpeed maps a room's deviation from target onto a cover
// position. Positive tempDiff means the room is above target. Within the
// deadband everything idles at 50%; rooms that overshot past target get
// throttled down in tiers so they stop stealing airflow. In auto mode the
// demand direction comes from the last active mode: an overcooled room must
// be throttled, not boosted, even though its absolute deviation is large.
func (m *Manager) calculateFanSpeed(tempDiff, absDiff float64) int {
	if absDiff <= m.cfg.TemperatureDeadband {
		return 50
	}

	switch m.cfg.HVACMode {
	case "cool":
		return m.directionalLadder(tempDiff, false)
	case "heat":
		return m.directionalLadder(tempDiff, true)
	default: // auto, dry, fan_only
		return m.directionalLadder(tempDiff, m.lastHVACMode == model.ModeHeat)
	}
}

func (m *Manager) directionalLadder(tempDiff float64, heating bool) int {
	if heating {
		tempDiff = -tempDiff
	}
	if tempDiff > 0 {
		return demandLadder(tempDiff)
	}
	return m.overshootLadder(-tempDiff)
}

func demandLadder(diff float64) int {
	switch {
	case diff >= 4.0:
		return 100
	case diff >= 3.0:
		return 90
	case diff >= 2.0:
		return 75
	case diff >= 1.5:
		return 65
	case diff >= 1.0:
		return 60
	default:
		return 55
	}
}

func (m *Manager) overshootLadder(overshoot float64) int {
	switch {
	case overshoot >= m.cfg.OvershootTier3:
		return 5
	case overshoot >= m.cfg.OvershootTier2:
		return 12
	case overshoot >= m.cfg.OvershootTier1:
		return 22
	case overshoot >= 0.7:
		return 30
	default:
		return 35
	}
}

// adaptiveFanSpeed scales the base ladder output by the room's learned
// cooling efficiency, bounded by the learning manager's max adjustment.
func (m *Manager) adaptiveFanSpeed(roomName string, tempDiff, absDiff float64) int {
	base := m.calculateFanSpeed(tempDiff, absDiff)

	if m.learning == nil || !m.learning.ShouldApply(roomName) {
		return base
	}

	profile := m.learning.Profile(roomName)
	if profile == nil || profile.CoolingEfficiency <= 0 {
		return base
	}

	factor := learning.DefaultCoolingEfficiency / profile.CoolingEfficiency
	factor = clampFloat(factor, 1.0-m.learning.MaxAdjustment, 1.0+m.learning.MaxAdjustment)

	adjusted := clampInt(int(math.Round(float64(base)*factor)), 5, 100)
	if adjusted != base {
		log.Debug().
			Str("room", roomName).
			Int("base", base).
			Int("adjusted", adjusted).
			Float64("confidence", profile.Confidence).
			Msg("Applied learned fan speed adjustment")
	}
	return adjusted
}

// smoothFanSpeed applies exponential smoothing to small fan speed changes
// so covers are not nudged every cycle. Large jumps pass through unsmoothed.
func (m *Manager) smoothFanSpeed(roomName string, newSpeed int) int {
	previous, ok := m.lastFanSpeeds[roomName]
	if !ok {
		m.lastFanSpeeds[roomName] = newSpeed
		return newSpeed
	}

	factor := m.cfg.SmoothingFactor
	threshold := float64(m.cfg.SmoothingThreshold)
	if m.learning != nil && m.learning.ShouldApply(roomName) {
		if p := m.learning.Profile(roomName); p != nil {
			factor = p.OptimalSmoothingFactor
			threshold = float64(p.OptimalSmoothingThreshold)
		}
	}

	delta := float64(newSpeed - previous)
	smoothed := newSpeed
	if math.Abs(delta) <= threshold {
		smoothed = int(math.Round(factor*float64(newSpeed) + (1.0-factor)*float64(previous)))
	}

	m.lastFanSpeeds[roomName] = smoothed
	return smoothed
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
