package optimizer

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// activeSchedule returns the schedule covering the given instant, or nil.
// A schedule naming the current weekday explicitly beats one matching via
// "all", "weekdays" or "weekends", regardless of list order. Windows may
// cross midnight ("22:00"-"06:00").
func (m *Manager) activeSchedule(now time.Time) *model.Schedule {
	day := strings.ToLower(now.Weekday().String())
	minutes := now.Hour()*60 + now.Minute()

	var groupMatch *model.Schedule
	for i := range m.cfg.Schedules {
		s := &m.cfg.Schedules[i]
		if !s.Enabled {
			continue
		}

		exact, group := scheduleDayMatch(s.Days, day)
		if !exact && !group {
			continue
		}
		if !scheduleTimeMatch(s.StartTime, s.EndTime, minutes) {
			continue
		}

		if exact {
			return s
		}
		if groupMatch == nil {
			groupMatch = s
		}
	}
	return groupMatch
}

func scheduleDayMatch(days []string, today string) (exact, group bool) {
	for _, d := range days {
		switch strings.ToLower(d) {
		case today:
			exact = true
		case "all":
			group = true
		case "weekdays":
			if today != "saturday" && today != "sunday" {
				group = true
			}
		case "weekends":
			if today == "saturday" || today == "sunday" {
				group = true
			}
		}
	}
	return exact, group
}

func scheduleTimeMatch(startStr, endStr string, nowMinutes int) bool {
	start, ok1 := parseClock(startStr)
	end, ok2 := parseClock(endStr)
	if !ok1 || !ok2 {
		log.Warn().Str("start", startStr).Str("end", endStr).Msg("Unparseable schedule time")
		return false
	}

	// the end minute itself is inside the window
	if start <= end {
		return nowMinutes >= start && nowMinutes <= end
	}
	// crosses midnight
	return nowMinutes >= start || nowMinutes <= end
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		// allow seconds too
		t, err = time.Parse("15:04:05", strings.TrimSpace(s))
		if err != nil {
			return 0, false
		}
	}
	return t.Hour()*60 + t.Minute(), true
}
