package optimizer

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/homeassistant"
)

// outdoorTemperature reads the dedicated outdoor sensor when configured,
// falling back to the weather entity's temperature attribute.
func (m *Manager) outdoorTemperature(ctx context.Context) *float64 {
	if m.cfg.OutdoorTempSensor != "" {
		entity, err := m.ha.GetState(ctx, m.cfg.OutdoorTempSensor)
		if err != nil {
			log.Warn().Err(err).Str("entity", m.cfg.OutdoorTempSensor).Msg("Failed to read outdoor sensor")
		} else if temp := homeassistant.Temperature(entity, "outdoor"); temp != nil {
			return temp
		}
	}

	if m.cfg.WeatherEntity != "" {
		entity, err := m.ha.GetState(ctx, m.cfg.WeatherEntity)
		if err != nil {
			log.Warn().Err(err).Str("entity", m.cfg.WeatherEntity).Msg("Failed to read weather entity")
			return nil
		}
		return homeassistant.AttributeFloat(entity, "temperature")
	}

	return nil
}

// weatherAdjustedTarget shifts the target against outdoor extremes: hot
// outside pulls the target down, cold outside pushes it up. The influence
// factor scales the shift; the result is rounded to one decimal.
func (m *Manager) weatherAdjustedTarget(target, outdoor float64) float64 {
	f := m.cfg.WeatherInfluenceFactor

	var adjustment float64
	switch {
	case outdoor > 30.0:
		adjustment = -0.5 * f
	case outdoor > 25.0:
		adjustment = -0.25 * f
	case outdoor < 15.0:
		adjustment = 0.5 * f
	case outdoor < 20.0:
		adjustment = 0.25 * f
	}

	return math.Round((target+adjustment)*10) / 10
}
