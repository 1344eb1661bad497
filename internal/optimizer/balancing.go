package optimizer

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// applyRoomBalancing nudges per-room fan speeds toward each other so one
// room does not hog airflow while another lags. Skipped while the whole
// house is still far from target, and when the rooms are already within
// the variance window of each other.
func (m *Manager) applyRoomBalancing(recommendations map[string]int, roomStates map[string]model.RoomState, effectiveTarget float64) map[string]int {
	type roomTemp struct {
		name string
		temp float64
	}

	var rooms []roomTemp
	for name, state := range roomStates {
		if _, ok := recommendations[name]; !ok {
			continue
		}
		if state.CurrentTemperature == nil {
			continue
		}
		rooms = append(rooms, roomTemp{name, *state.CurrentTemperature})
	}

	if len(rooms) < 2 {
		return recommendations
	}

	var sum float64
	minTemp, maxTemp := rooms[0].temp, rooms[0].temp
	for _, r := range rooms {
		sum += r.temp
		minTemp = math.Min(minTemp, r.temp)
		maxTemp = math.Max(maxTemp, r.temp)
	}
	houseMean := sum / float64(len(rooms))

	if maxTemp-minTemp <= m.cfg.TargetRoomVariance {
		log.Debug().
			Float64("spread", maxTemp-minTemp).
			Msg("Skipping room balancing - rooms already even")
		return recommendations
	}

	if math.Abs(houseMean-effectiveTarget) > m.cfg.TargetRoomVariance {
		log.Debug().
			Float64("house_mean", houseMean).
			Float64("target", effectiveTarget).
			Msg("Skipping room balancing - house still far from target")
		return recommendations
	}

	balanced := make(map[string]int, len(recommendations))
	for name, speed := range recommendations {
		balanced[name] = speed
	}

	for _, r := range rooms {
		deviation := r.temp - houseMean
		adjustment := m.cfg.BalancingAggressiveness * deviation
		if m.cfg.HVACMode == "heat" {
			adjustment = -adjustment
		}

		adjusted := clampInt(int(math.Round(float64(balanced[r.name])+adjustment)), m.cfg.MinAirflowPercent, 100)
		if adjusted != balanced[r.name] {
			log.Debug().
				Str("room", r.name).
				Float64("deviation", deviation).
				Int("from", balanced[r.name]).
				Int("to", adjusted).
				Msg("Room balancing adjustment")
		}
		balanced[r.name] = adjusted
	}

	return balanced
}
