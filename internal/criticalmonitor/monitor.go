package criticalmonitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/config"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/datadog"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/homeassistant"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/notifications"
)

// acTriggerCooldown limits how often a critical room may force the main AC
// on, independent of the compressor protection in the optimizer.
const acTriggerCooldown = 5 * time.Minute

// Monitor watches heat-sensitive rooms independently of the optimization
// cycle, on a much tighter poll. It escalates through warning, critical and
// recovering states and can force the main AC on when a room goes critical.
type Monitor struct {
	mu sync.Mutex

	cfg      *config.Config
	ha       *homeassistant.Client
	notifier *notifications.Notifier

	states        map[string]*model.CriticalRoomState
	lastACTrigger time.Time

	now func() time.Time
}

func New(cfg *config.Config, ha *homeassistant.Client, notifier *notifications.Notifier) *Monitor {
	states := make(map[string]*model.CriticalRoomState, len(cfg.CriticalRooms))
	for name := range cfg.CriticalRooms {
		states[name] = &model.CriticalRoomState{Status: model.CriticalNormal}
	}
	return &Monitor{
		cfg:      cfg,
		ha:       ha,
		notifier: notifier,
		states:   states,
		now:      time.Now,
	}
}

func (mon *Monitor) Run(ctx context.Context) {
	if len(mon.cfg.CriticalRooms) == 0 {
		log.Info().Msg("No critical rooms configured, monitor idle")
		return
	}

	log.Info().
		Int("rooms", len(mon.cfg.CriticalRooms)).
		Int("poll_seconds", mon.cfg.CriticalPollSeconds).
		Msg("Starting critical room monitor")

	ticker := time.NewTicker(time.Duration(mon.cfg.CriticalPollSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Critical monitor stopping")
			return
		case <-ticker.C:
			mon.CheckAll(ctx)
		}
	}
}

// CheckAll polls every critical room once and advances its state machine.
func (mon *Monitor) CheckAll(ctx context.Context) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	for name, roomCfg := range mon.cfg.CriticalRooms {
		state := mon.states[name]
		state.LastCheck = mon.now()

		sensor := mon.sensorFor(name)
		if sensor == "" {
			log.Warn().Str("room", name).Msg("Critical room has no temperature sensor configured")
			continue
		}

		entity, err := mon.ha.GetState(ctx, sensor)
		if err != nil {
			log.Warn().Err(err).Str("room", name).Msg("Failed to read critical room sensor")
			continue
		}
		temp := homeassistant.Temperature(entity, name)
		if temp == nil {
			log.Warn().Str("room", name).Msg("Critical room sensor has no valid reading")
			continue
		}

		state.Temperature = temp
		datadog.Gauge("critical.temperature", *temp, "room:"+name)

		next := determineStatus(state.Status, *temp, roomCfg)
		if next != state.Status {
			mon.handleTransition(ctx, name, roomCfg, state, next, *temp)
		}
	}
}

// determineStatus advances one room's four-state machine. Escalation is
// immediate; de-escalation from critical passes through recovering and only
// completes once the temperature falls to the safe threshold.
func determineStatus(current model.CriticalStatus, temp float64, cfg model.CriticalRoomConfig) model.CriticalStatus {
	warningAt := cfg.TempMax - cfg.WarningOffset

	switch current {
	case model.CriticalNormal:
		if temp >= cfg.TempMax {
			return model.CriticalCritical
		}
		if temp >= warningAt {
			return model.CriticalWarning
		}
		return model.CriticalNormal

	case model.CriticalWarning:
		if temp >= cfg.TempMax {
			return model.CriticalCritical
		}
		if temp < warningAt {
			return model.CriticalNormal
		}
		return model.CriticalWarning

	case model.CriticalCritical:
		if temp < cfg.TempMax {
			return model.CriticalRecovering
		}
		return model.CriticalCritical

	case model.CriticalRecovering:
		if temp >= cfg.TempMax {
			return model.CriticalCritical
		}
		if temp <= cfg.TempSafe {
			return model.CriticalNormal
		}
		return model.CriticalRecovering
	}

	return model.CriticalNormal
}

func (mon *Monitor) handleTransition(ctx context.Context, name string, roomCfg model.CriticalRoomConfig, state *model.CriticalRoomState, next model.CriticalStatus, temp float64) {
	prev := state.Status
	state.Status = next

	log.Info().
		Str("room", name).
		Str("from", string(prev)).
		Str("to", string(next)).
		Float64("temp", temp).
		Msg("Critical room status change")
	datadog.Count("critical.status_change", 1, "room:"+name, "status:"+string(next))

	switch next {
	case model.CriticalWarning:
		mon.notify(ctx, roomCfg, state,
			fmt.Sprintf("Warning: %s heating up", name),
			fmt.Sprintf("%s is at %.1f°C, approaching the %.1f°C limit", name, temp, roomCfg.TempMax))

	case model.CriticalCritical:
		mon.notify(ctx, roomCfg, state,
			fmt.Sprintf("CRITICAL: %s over temperature", name),
			fmt.Sprintf("%s reached %.1f°C (limit %.1f°C). Forcing AC on.", name, temp, roomCfg.TempMax))
		mon.ensureACRunning(ctx, name)

	case model.CriticalNormal:
		if prev == model.CriticalRecovering || prev == model.CriticalWarning {
			mon.notify(ctx, roomCfg, state,
				fmt.Sprintf("%s back to normal", name),
				fmt.Sprintf("%s recovered to %.1f°C", name, temp))
		}
	}
}

func (mon *Monitor) notify(ctx context.Context, roomCfg model.CriticalRoomConfig, state *model.CriticalRoomState, title, message string) {
	mon.notifier.Persistent(ctx, title, message)
	if len(roomCfg.NotifyServices) > 0 {
		mon.notifier.Send(ctx, roomCfg.NotifyServices, title, message)
	}
	state.LastNotification = mon.now()
}

// ensureACRunning turns the main unit on in the configured mode when a
// critical room demands it, at most once per cooldown window.
func (mon *Monitor) ensureACRunning(ctx context.Context, room string) {
	if mon.cfg.MainClimateEntity == "" {
		return
	}
	if !mon.lastACTrigger.IsZero() && mon.now().Sub(mon.lastACTrigger) < acTriggerCooldown {
		log.Debug().Str("room", room).Msg("AC trigger still in cooldown")
		return
	}

	climate, err := mon.ha.GetState(ctx, mon.cfg.MainClimateEntity)
	if err != nil || climate == nil {
		log.Warn().Str("entity", mon.cfg.MainClimateEntity).Msg("Main climate entity not readable")
		return
	}
	if climate.State != "off" {
		return
	}

	mode := mon.cfg.HVACMode
	if mode == "auto" || mode == "" {
		mode = "cool"
	}

	log.Warn().Str("room", room).Str("mode", mode).Msg("Critical room forcing main AC on")
	err = mon.ha.CallServiceWithRetry(ctx, "climate", "set_hvac_mode", map[string]any{
		"entity_id": mon.cfg.MainClimateEntity,
		"hvac_mode": mode,
	}, "Critical AC ("+mon.cfg.MainClimateEntity+")")
	if err != nil {
		log.Error().Err(err).Msg("Failed to force AC on for critical room")
		return
	}
	mon.lastACTrigger = mon.now()
}

func (mon *Monitor) sensorFor(criticalRoom string) string {
	for _, room := range mon.cfg.Rooms {
		if room.RoomName == criticalRoom {
			return room.TemperatureSensor
		}
	}
	return ""
}

// Status returns a copy of every critical room's current state.
func (mon *Monitor) Status() map[string]model.CriticalRoomState {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	out := make(map[string]model.CriticalRoomState, len(mon.states))
	for name, state := range mon.states {
		out[name] = *state
	}
	return out
}
