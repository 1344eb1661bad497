package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// Monday 2026-08-31
var monday10am = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func TestActiveScheduleExactDayBeatsGroup(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "everyday", Days: []string{"all"}, StartTime: "08:00", EndTime: "18:00", TargetTemp: 23.0, Enabled: true},
		{Name: "monday special", Days: []string{"monday"}, StartTime: "08:00", EndTime: "18:00", TargetTemp: 20.0, Enabled: true},
	}

	s := m.activeSchedule(monday10am)
	require.NotNil(t, s)
	assert.Equal(t, "monday special", s.Name)
	assert.Equal(t, 20.0, s.TargetTemp)
}

func TestActiveScheduleGroupFallback(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "workdays", Days: []string{"weekdays"}, StartTime: "08:00", EndTime: "18:00", TargetTemp: 23.0, Enabled: true},
		{Name: "lazy weekend", Days: []string{"weekends"}, StartTime: "08:00", EndTime: "18:00", TargetTemp: 24.0, Enabled: true},
	}

	s := m.activeSchedule(monday10am)
	require.NotNil(t, s)
	assert.Equal(t, "workdays", s.Name)

	saturday := time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC)
	s = m.activeSchedule(saturday)
	require.NotNil(t, s)
	assert.Equal(t, "lazy weekend", s.Name)
}

func TestActiveScheduleDisabledSkipped(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "off", Days: []string{"all"}, StartTime: "00:00", EndTime: "23:59", TargetTemp: 18.0, Enabled: false},
	}

	assert.Nil(t, m.activeSchedule(monday10am))
}

func TestActiveScheduleOutsideWindow(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "morning", Days: []string{"all"}, StartTime: "06:00", EndTime: "09:00", TargetTemp: 21.0, Enabled: true},
	}

	assert.Nil(t, m.activeSchedule(monday10am))
}

func TestActiveScheduleCrossesMidnight(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "night", Days: []string{"all"}, StartTime: "22:00", EndTime: "06:00", TargetTemp: 25.0, Enabled: true},
	}

	lateNight := time.Date(2026, 8, 31, 23, 30, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	assert.NotNil(t, m.activeSchedule(lateNight))
	assert.NotNil(t, m.activeSchedule(earlyMorning))
	assert.Nil(t, m.activeSchedule(midday))
}

func TestActiveScheduleBoundariesInclusive(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "morning", Days: []string{"all"}, StartTime: "06:00", EndTime: "09:00", TargetTemp: 21.0, Enabled: true},
	}

	atStart := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	atEnd := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	pastEnd := time.Date(2026, 8, 31, 9, 1, 0, 0, time.UTC)
	assert.NotNil(t, m.activeSchedule(atStart))
	assert.NotNil(t, m.activeSchedule(atEnd))
	assert.Nil(t, m.activeSchedule(pastEnd))
}

func TestActiveScheduleBadTimeIgnored(t *testing.T) {
	m := testManager(t, "cool")
	m.cfg.Schedules = []model.Schedule{
		{Name: "broken", Days: []string{"all"}, StartTime: "not a time", EndTime: "09:00", TargetTemp: 21.0, Enabled: true},
	}

	assert.Nil(t, m.activeSchedule(monday10am))
}
