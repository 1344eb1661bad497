package criticalmonitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

var serverRoom = model.CriticalRoomConfig{
	TempMax:       30.0,
	TempSafe:      26.0,
	WarningOffset: 2.0,
}

func TestDetermineStatusEscalation(t *testing.T) {
	assert.Equal(t, model.CriticalNormal, determineStatus(model.CriticalNormal, 25.0, serverRoom))
	assert.Equal(t, model.CriticalWarning, determineStatus(model.CriticalNormal, 28.5, serverRoom))
	assert.Equal(t, model.CriticalCritical, determineStatus(model.CriticalNormal, 30.0, serverRoom))
	assert.Equal(t, model.CriticalCritical, determineStatus(model.CriticalWarning, 31.0, serverRoom))
}

func TestDetermineStatusWarningClears(t *testing.T) {
	assert.Equal(t, model.CriticalNormal, determineStatus(model.CriticalWarning, 27.0, serverRoom))
	assert.Equal(t, model.CriticalWarning, determineStatus(model.CriticalWarning, 28.2, serverRoom))
}

func TestDetermineStatusRecoveryPath(t *testing.T) {
	// dropping below max enters recovering, not normal
	assert.Equal(t, model.CriticalRecovering, determineStatus(model.CriticalCritical, 29.0, serverRoom))

	// recovering holds until the safe threshold
	assert.Equal(t, model.CriticalRecovering, determineStatus(model.CriticalRecovering, 27.5, serverRoom))
	assert.Equal(t, model.CriticalNormal, determineStatus(model.CriticalRecovering, 26.0, serverRoom))

	// bouncing back above max re-enters critical
	assert.Equal(t, model.CriticalCritical, determineStatus(model.CriticalRecovering, 30.5, serverRoom))
}

func TestDetermineStatusCriticalHolds(t *testing.T) {
	assert.Equal(t, model.CriticalCritical, determineStatus(model.CriticalCritical, 32.0, serverRoom))
}
