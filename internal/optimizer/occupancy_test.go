package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomEffectiveTargetOccupiedUnchanged(t *testing.T) {
	m := testManager(t, "cool")
	m.occupancyState["living"] = occupancyRecord{occupied: true}

	assert.Equal(t, 22.0, m.roomEffectiveTarget("living", 22.0))
}

func TestRoomEffectiveTargetVacantSetback(t *testing.T) {
	cool := testManager(t, "cool")
	cool.occupancyState["living"] = occupancyRecord{occupied: false}
	assert.Equal(t, 24.0, cool.roomEffectiveTarget("living", 22.0))

	heat := testManager(t, "heat")
	heat.occupancyState["living"] = occupancyRecord{occupied: false}
	assert.Equal(t, 20.0, heat.roomEffectiveTarget("living", 22.0))
}

func TestRoomEffectiveTargetUnknownRoomUnchanged(t *testing.T) {
	m := testManager(t, "cool")
	assert.Equal(t, 22.0, m.roomEffectiveTarget("attic", 22.0))
}

func TestRoomEffectiveTargetDisabledControl(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.EnableOccupancyControl = false
	m.occupancyState["living"] = occupancyRecord{occupied: false}

	assert.Equal(t, 22.0, m.roomEffectiveTarget("living", 22.0))
}
