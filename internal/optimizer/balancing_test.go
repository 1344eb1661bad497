package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

func roomState(temp, target float64) model.RoomState {
	return model.RoomState{
		CurrentTemperature: &temp,
		TargetTemperature:  target,
		CoverPosition:      50,
	}
}

func TestBalancingSingleRoomUnchanged(t *testing.T) {
	m := testManager(t, "cool")

	recs := map[string]int{"living": 60}
	states := map[string]model.RoomState{"living": roomState(23.0, 22.0)}

	got := m.applyRoomBalancing(recs, states, 22.0)
	assert.Equal(t, recs, got)
}

func TestBalancingSkippedWhenHouseFarFromTarget(t *testing.T) {
	m := testManager(t, "cool")

	// house mean 26.0 vs target 22.0, beyond the 1.0 variance window
	recs := map[string]int{"living": 90, "bedroom": 75}
	states := map[string]model.RoomState{
		"living":  roomState(27.0, 22.0),
		"bedroom": roomState(25.0, 22.0),
	}

	got := m.applyRoomBalancing(recs, states, 22.0)
	assert.Equal(t, recs, got)
}

func TestBalancingHotterRoomGetsMoreAirflowInCoolMode(t *testing.T) {
	m := testManager(t, "cool")

	recs := map[string]int{"living": 55, "bedroom": 55}
	states := map[string]model.RoomState{
		"living":  roomState(22.8, 22.0),
		"bedroom": roomState(21.6, 22.0),
	}

	got := m.applyRoomBalancing(recs, states, 22.0)
	assert.Greater(t, got["living"], got["bedroom"])
}

func TestBalancingSkippedWhenRoomsAlreadyEven(t *testing.T) {
	m := testManager(t, "cool")

	// spread 0.4 is inside the 1.0 variance window, nothing to even out
	recs := map[string]int{"living": 55, "bedroom": 55}
	states := map[string]model.RoomState{
		"living":  roomState(22.2, 22.0),
		"bedroom": roomState(21.8, 22.0),
	}

	got := m.applyRoomBalancing(recs, states, 22.0)
	assert.Equal(t, recs, got)
}

func TestBalancingSignFlipsInHeatMode(t *testing.T) {
	m := testManager(t, "heat")

	recs := map[string]int{"living": 55, "bedroom": 55}
	states := map[string]model.RoomState{
		"living":  roomState(22.6, 22.0),
		"bedroom": roomState(21.4, 22.0),
	}

	got := m.applyRoomBalancing(recs, states, 22.0)
	// in heat mode the colder room needs the extra airflow
	assert.Greater(t, got["bedroom"], got["living"])
}

func TestBalancingRespectsMinAirflow(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.BalancingAggressiveness = 100.0

	recs := map[string]int{"living": 15, "bedroom": 15}
	states := map[string]model.RoomState{
		"living":  roomState(21.4, 22.0),
		"bedroom": roomState(22.6, 22.0),
	}

	got := m.applyRoomBalancing(recs, states, 22.0)
	for room, speed := range got {
		assert.GreaterOrEqual(t, speed, m.cfg.MinAirflowPercent, "room %s", room)
		assert.LessOrEqual(t, speed, 100, "room %s", room)
	}
}

func TestBalancingIgnoresRoomsWithoutReadings(t *testing.T) {
	m := testManager(t, "cool")

	recs := map[string]int{"living": 60}
	states := map[string]model.RoomState{
		"living":  roomState(22.3, 22.0),
		"bedroom": {TargetTemperature: 22.0, CoverPosition: 100},
	}

	got := m.applyRoomBalancing(recs, states, 22.0)
	assert.Equal(t, 60, got["living"])
	_, ok := got["bedroom"]
	assert.False(t, ok)
}
