package optimizer

import (
	"math"

	"github.com/rs/zerolog/log"
)

const (
	tempHistoryWindowSec = 900.0 // 15 minutes
	maxHistoryPoints     = 30
	minPointsForTrend    = 3
)

func (m *Manager) recordTempHistory(roomName string, temp float64) {
	nowSec := float64(m.now().UnixNano()) / 1e9
	history := append(m.tempHistory[roomName], tempSample{at: nowSec, temp: temp})

	cutoff := nowSec - tempHistoryWindowSec
	start := 0
	for start < len(history) && history[start].at < cutoff {
		start++
	}
	history = history[start:]

	if len(history) > maxHistoryPoints {
		history = history[len(history)-maxHistoryPoints:]
	}
	m.tempHistory[roomName] = history
}

// tempRateOfChange fits a least-squares line through the room's recent
// samples and returns the slope in °C per minute. Samples more than two
// standard deviations from the mean are dropped first; a single bad sensor
// reading would otherwise dominate the fit.
func (m *Manager) tempRateOfChange(roomName string) *float64 {
	history := m.tempHistory[roomName]
	if len(history) < minPointsForTrend {
		return nil
	}

	var sum float64
	for _, s := range history {
		sum += s.temp
	}
	meanTemp := sum / float64(len(history))

	var variance float64
	for _, s := range history {
		variance += (s.temp - meanTemp) * (s.temp - meanTemp)
	}
	stddev := math.Sqrt(variance / float64(len(history)))

	filtered := history
	if stddev > 0 {
		filtered = nil
		for _, s := range history {
			if math.Abs(s.temp-meanTemp) <= 2.0*stddev {
				filtered = append(filtered, s)
			}
		}
	}
	if len(filtered) < minPointsForTrend {
		return nil
	}

	var sumT, sumY, sumTY, sumTT float64
	t0 := filtered[0].at
	for _, s := range filtered {
		t := (s.at - t0) / 60.0 // minutes
		sumT += t
		sumY += s.temp
		sumTY += t * s.temp
		sumTT += t * t
	}
	n := float64(len(filtered))
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return nil
	}

	slope := (n*sumTY - sumT*sumY) / denom
	return &slope
}

// applyPredictiveAdjustment blends the fan ladder's answer for the
// projected temperature into the current answer, so a room trending fast
// toward target backs off before it overshoots.
func (m *Manager) applyPredictiveAdjustment(roomName string, baseSpeed int, currentTemp, target float64) int {
	rate := m.tempRateOfChange(roomName)
	if rate == nil {
		return baseSpeed
	}

	predicted := currentTemp + *rate*m.cfg.PredictiveLookaheadMinutes
	predictedDiff := predicted - target
	predictedSpeed := m.calculateFanSpeed(predictedDiff, abs(predictedDiff))

	adjusted := baseSpeed + int(math.Round(m.cfg.PredictiveBoostFactor*float64(predictedSpeed-baseSpeed)))
	adjusted = clampInt(adjusted, 5, 100)

	if adjusted != baseSpeed {
		log.Debug().
			Str("room", roomName).
			Float64("rate_per_min", *rate).
			Float64("predicted", predicted).
			Int("base", baseSpeed).
			Int("adjusted", adjusted).
			Msg("Predictive fan adjustment")
	}
	return adjusted
}
