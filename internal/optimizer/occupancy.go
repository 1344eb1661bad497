package optimizer

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/homeassistant"
)

// updateOccupancy refreshes the per-room occupancy map from the configured
// presence sensors. Rooms without a sensor are always treated as occupied.
func (m *Manager) updateOccupancy(ctx context.Context) {
	nowSec := float64(m.now().UnixNano()) / 1e9

	for _, room := range m.cfg.Rooms {
		if room.OccupancySensor == "" {
			continue
		}

		entity, err := m.ha.GetState(ctx, room.OccupancySensor)
		if err != nil {
			log.Warn().Err(err).Str("room", room.RoomName).Msg("Failed to read occupancy sensor")
			continue
		}

		occupied := homeassistant.Occupied(entity)
		if occupied == nil {
			continue
		}

		prev, had := m.occupancyState[room.RoomName]
		rec := occupancyRecord{occupied: *occupied, lastSeen: prev.lastSeen}
		if *occupied {
			rec.lastSeen = nowSec
		}
		m.occupancyState[room.RoomName] = rec

		if !had || prev.occupied != *occupied {
			log.Info().Str("room", room.RoomName).Bool("occupied", *occupied).Msg("Occupancy changed")
		}
	}
}

// roomEffectiveTarget relaxes a vacant room's target by the configured
// setback: upward in cool mode, downward in heat mode.
func (m *Manager) roomEffectiveTarget(roomName string, target float64) float64 {
	if !m.cfg.EnableOccupancyControl {
		return target
	}

	rec, ok := m.occupancyState[roomName]
	if !ok || rec.occupied {
		return target
	}

	switch m.cfg.HVACMode {
	case "cool":
		return target + m.cfg.VacantRoomSetback
	case "heat":
		return target - m.cfg.VacantRoomSetback
	}
	return target
}
