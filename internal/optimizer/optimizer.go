package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/config"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/datadog"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/homeassistant"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/learning"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/notifications"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/store"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/telemetry"
)

type tempSample struct {
	at   float64 // unix seconds
	temp float64
}

type occupancyRecord struct {
	occupied bool
	lastSeen float64 // unix seconds
}

// Manager is the supervisory decision engine. One instance owns all runtime
// state; the cycle loop, the HTTP API and the critical monitor reach it
// through the mutex.
type Manager struct {
	mu sync.Mutex

	cfg      *config.Config
	ha       *homeassistant.Client
	learning *learning.Manager
	notifier *notifications.Notifier
	state    *store.Store
	recorder *telemetry.Recorder // nil when telemetry disabled

	manualOverride bool
	roomOverrides  map[string]bool

	lastFanSpeeds  map[string]int
	lastRoomTemps  map[string]float64
	tempHistory    map[string][]tempSample
	occupancyState map[string]occupancyRecord

	lastRecommendations map[string]int
	lastMainFanSpeed    model.FanSpeed
	lastOptimization    time.Time
	lastResult          *model.CycleResult
	lastSummary         string

	lastHVACMode         model.HVACMode
	lastModeChange       time.Time
	compressorModeCycles int

	acLastTurnedOn  time.Time
	acLastTurnedOff time.Time

	lastError   string
	errorCount  int
	totalCycles int
	startupTime time.Time

	now func() time.Time
}

func New(cfg *config.Config, ha *homeassistant.Client, lm *learning.Manager, notifier *notifications.Notifier, st *store.Store, recorder *telemetry.Recorder) *Manager {
	m := &Manager{
		cfg:                 cfg,
		ha:                  ha,
		learning:            lm,
		notifier:            notifier,
		state:               st,
		recorder:            recorder,
		roomOverrides:       map[string]bool{},
		lastFanSpeeds:       map[string]int{},
		lastRoomTemps:       map[string]float64{},
		tempHistory:         map[string][]tempSample{},
		occupancyState:      map[string]occupancyRecord{},
		lastRecommendations: map[string]int{},
		lastHVACMode:        model.HVACMode(cfg.HVACMode),
		startupTime:         time.Now(),
		now:                 time.Now,
	}
	for room, enabled := range cfg.RoomOverrides {
		m.roomOverrides[room] = enabled
	}
	m.loadCompressorState()
	return m
}

// Run drives the cycle loop until the context is canceled. Learning profiles
// are recomputed on their own slower cadence.
func (m *Manager) Run(ctx context.Context) {
	log.Info().
		Int("rooms", len(m.cfg.Rooms)).
		Str("hvac_mode", m.cfg.HVACMode).
		Int("poll_seconds", m.cfg.PollIntervalSeconds).
		Msg("Starting optimizer loop")

	poll := time.NewTicker(time.Duration(m.cfg.PollIntervalSeconds) * time.Second)
	defer poll.Stop()

	learn := time.NewTicker(time.Duration(m.cfg.LearningUpdateMinutes) * time.Minute)
	defer learn.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Optimizer loop stopping")
			return
		case <-poll.C:
			m.Optimize(ctx)
		case <-learn.C:
			m.mu.Lock()
			if m.learning.Enabled {
				updated := m.learning.UpdateProfiles()
				if len(updated) > 0 {
					log.Info().Strs("rooms", updated).Msg("Learning profiles updated")
				}
			}
			m.mu.Unlock()
		}
	}
}

// Optimize runs one cycle. Any panic or unexpected failure degrades to a
// safe empty result and bumps the error counter; the loop keeps running.
func (m *Manager) Optimize(ctx context.Context) *model.CycleResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := func() (result *model.CycleResult) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Unexpected error during optimization")
				m.lastError = fmt.Sprintf("Optimization Error: %v", r)
				m.errorCount++
				result = m.safeResult()
			}
		}()
		return m.optimizeImpl(ctx)
	}()

	m.lastResult = result
	return result
}

func (m *Manager) safeResult() *model.CycleResult {
	return &model.CycleResult{
		RoomStates:      map[string]model.RoomState{},
		Recommendations: map[string]int{},
		LastError:       m.lastError,
		ErrorCount:      m.errorCount,
	}
}

func (m *Manager) optimizeImpl(ctx context.Context) *model.CycleResult {
	cycleStart := m.now()

	if m.manualOverride {
		log.Debug().Msg("Manual override enabled - skipping optimization")
		res := m.safeResult()
		res.ManualOverride = true
		res.BaseTarget = m.cfg.TargetTemperature
		res.EffectiveTarget = m.cfg.TargetTemperature
		return res
	}

	effectiveTarget := m.cfg.TargetTemperature
	var activeSchedule *model.Schedule

	if m.cfg.EnableScheduling {
		activeSchedule = m.activeSchedule(m.now())
		if activeSchedule != nil {
			effectiveTarget = activeSchedule.TargetTemp
			log.Info().
				Str("schedule", activeSchedule.Name).
				Float64("target", effectiveTarget).
				Msg("Schedule active")
		}
	}

	var outdoorTemp *float64
	weatherAdjustment := 0.0
	if m.cfg.EnableWeatherAdjustment {
		outdoorTemp = m.outdoorTemperature(ctx)
		if outdoorTemp != nil {
			adjusted := m.weatherAdjustedTarget(effectiveTarget, *outdoorTemp)
			weatherAdjustment = adjusted - effectiveTarget
			effectiveTarget = adjusted
			log.Info().
				Float64("outdoor", *outdoorTemp).
				Float64("adjustment", weatherAdjustment).
				Float64("target", effectiveTarget).
				Msg("Weather adjustment applied")
		}
	}

	if m.cfg.EnableOccupancyControl {
		m.updateOccupancy(ctx)
	}

	roomStates := m.collectRoomStates(ctx, effectiveTarget)

	mainACRunning := false
	currentHVACMode := ""
	if m.cfg.MainClimateEntity != "" {
		climate, err := m.ha.GetState(ctx, m.cfg.MainClimateEntity)
		if err != nil {
			log.Warn().Err(err).Str("entity", m.cfg.MainClimateEntity).Msg("Could not read main climate entity")
		} else if climate != nil {
			currentHVACMode = climate.State
			action := homeassistant.AttributeString(climate, "hvac_action")
			mainACRunning = action == "cooling" || action == "heating" ||
				(climate.State != "off" && climate.State != "unavailable" && climate.State != "unknown")
		}
	}

	needsAC := m.checkIfACNeeded(roomStates, mainACRunning)

	if m.cfg.AutoControlMainAC && m.cfg.MainClimateEntity != "" {
		m.controlMainAC(ctx, needsAC, currentHVACMode)
	}

	modeDecision := model.HVACMode("")
	if m.cfg.EnableModeDecision {
		modeDecision = m.decideHVACMode(roomStates, mainACRunning)
		if m.cfg.AutoControlMainAC && m.cfg.MainClimateEntity != "" && mainACRunning &&
			modeDecision != "" && string(modeDecision) != currentHVACMode {
			m.applyModeDecision(ctx, modeDecision)
		}
	}

	validCount := 0
	for _, state := range roomStates {
		if state.CurrentTemperature != nil {
			validCount++
		}
	}

	if validCount == 0 {
		return m.noDataResult(ctx, roomStates, mainACRunning, effectiveTarget, cycleStart)
	}

	recommendations := m.lastRecommendations
	mainFanSpeed := m.lastMainFanSpeed

	allStable := m.roomsStable(roomStates)
	shouldRun := m.lastOptimization.IsZero() ||
		m.now().Sub(m.lastOptimization) >= time.Duration(m.cfg.OptimizationIntervalSec)*time.Second

	if allStable && len(m.lastRecommendations) > 0 {
		shouldRun = false
		log.Info().
			Float64("deadband", m.cfg.TemperatureDeadband).
			Msg("Skipping optimization - all rooms stable within deadband")
	}

	if (m.cfg.MainClimateEntity == "" || mainACRunning) && shouldRun {
		recommendations = m.calculateRecommendations(roomStates, effectiveTarget)
		m.applyRecommendations(ctx, recommendations)

		if m.cfg.MainFanEntity != "" {
			mainFanSpeed = m.determineMainFanSpeed(roomStates, effectiveTarget)
			m.setMainFanSpeed(ctx, mainFanSpeed)
		}

		if len(recommendations) > 0 {
			m.lastError = ""
			m.errorCount = 0
		}

		m.lastRecommendations = recommendations
		m.lastMainFanSpeed = mainFanSpeed
		m.lastOptimization = m.now()
	} else if m.cfg.MainClimateEntity != "" && !mainACRunning {
		log.Info().Msg("Main AC is not running - skipping optimization")
	}

	cycleTime := m.now().Sub(cycleStart)
	m.totalCycles++

	uptimeHours := m.now().Sub(m.startupTime).Hours()
	errorRate := 0.0
	if uptimeHours > 0 {
		errorRate = float64(m.errorCount) / uptimeHours
	}

	m.trackLearning(roomStates, recommendations, cycleTime)
	m.emitMetrics(roomStates, recommendations, cycleTime)

	var acTemp *float64
	if v, ok := recommendations["ac_temperature"]; ok {
		f := float64(v)
		acTemp = &f
	}

	return &model.CycleResult{
		RoomStates:         roomStates,
		Recommendations:    withoutACTemp(recommendations),
		ACTemperature:      acTemp,
		MainFanSpeed:       mainFanSpeed,
		MainACRunning:      mainACRunning,
		NeedsAC:            needsAC,
		HVACModeDecision:   modeDecision,
		Summary:            m.lastSummary,
		ActiveSchedule:     activeSchedule,
		EffectiveTarget:    effectiveTarget,
		BaseTarget:         m.cfg.TargetTemperature,
		WeatherAdjustment:  weatherAdjustment,
		OutdoorTemperature: outdoorTemp,
		LastError:          m.lastError,
		ErrorCount:         m.errorCount,
		CycleTimeMS:        float64(cycleTime.Microseconds()) / 1000.0,
		TotalCycles:        m.totalCycles,
		ErrorRatePerHour:   errorRate,
	}
}

func (m *Manager) noDataResult(ctx context.Context, roomStates map[string]model.RoomState, mainACRunning bool, effectiveTarget float64, cycleStart time.Time) *model.CycleResult {
	sinceStartup := m.now().Sub(m.startupTime)
	inStartupDelay := sinceStartup < time.Duration(m.cfg.StartupDelaySeconds)*time.Second

	if inStartupDelay {
		log.Info().
			Dur("since_startup", sinceStartup).
			Int("delay_seconds", m.cfg.StartupDelaySeconds).
			Msg("No valid temperature readings during startup delay")
	} else {
		log.Warn().Msg("No valid temperature readings available - skipping optimization")
		m.notifier.Persistent(ctx, "No Temperature Data",
			"No valid temperature readings from sensors. Check sensor availability.")
	}

	res := &model.CycleResult{
		RoomStates:      roomStates,
		Recommendations: map[string]int{},
		MainACRunning:   mainACRunning,
		EffectiveTarget: effectiveTarget,
		BaseTarget:      m.cfg.TargetTemperature,
		CycleTimeMS:     float64(m.now().Sub(cycleStart).Microseconds()) / 1000.0,
	}
	if !inStartupDelay {
		res.LastError = "No valid temperature data"
		res.ErrorCount = m.errorCount
	}
	return res
}

// collectRoomStates polls every configured room's sensors. Unreadable rooms
// stay in the map with a nil temperature so diagnostics can show them.
func (m *Manager) collectRoomStates(ctx context.Context, effectiveTarget float64) map[string]model.RoomState {
	states := make(map[string]model.RoomState, len(m.cfg.Rooms))

	for _, room := range m.cfg.Rooms {
		target := effectiveTarget
		if room.TargetTemperature != nil {
			target = *room.TargetTemperature
		}
		target = m.roomEffectiveTarget(room.RoomName, target)

		tempEntity, err := m.ha.GetState(ctx, room.TemperatureSensor)
		if err != nil {
			log.Warn().Err(err).Str("room", room.RoomName).Msg("Failed to read temperature sensor")
		}
		currentTemp := homeassistant.Temperature(tempEntity, room.RoomName)

		var humidity *float64
		if room.HumiditySensor != "" {
			humEntity, err := m.ha.GetState(ctx, room.HumiditySensor)
			if err != nil {
				log.Warn().Err(err).Str("room", room.RoomName).Msg("Failed to read humidity sensor")
			}
			humidity = homeassistant.Humidity(humEntity, room.RoomName)
		}

		coverEntity, err := m.ha.GetState(ctx, room.CoverEntity)
		if err != nil {
			log.Warn().Err(err).Str("room", room.RoomName).Msg("Failed to read cover entity")
		}
		coverPosition := homeassistant.CoverPosition(coverEntity, room.RoomName)

		var occupied *bool
		if rec, ok := m.occupancyState[room.RoomName]; ok {
			v := rec.occupied
			occupied = &v
		}

		if currentTemp != nil {
			m.recordTempHistory(room.RoomName, *currentTemp)
		}

		states[room.RoomName] = model.RoomState{
			CurrentTemperature: currentTemp,
			CurrentHumidity:    humidity,
			TargetTemperature:  target,
			CoverPosition:      coverPosition,
			Occupied:           occupied,
		}
	}

	return states
}

// calculateRecommendations produces the per-room fan-speed map plus the
// optional AC setpoint, running the full pipeline: ladder, predictive
// adjustment, smoothing, then inter-room balancing.
func (m *Manager) calculateRecommendations(roomStates map[string]model.RoomState, effectiveTarget float64) map[string]int {
	recommendations := make(map[string]int)

	for roomName, state := range roomStates {
		if state.CurrentTemperature == nil {
			continue
		}

		target := state.TargetTemperature
		tempDiff := *state.CurrentTemperature - target
		absDiff := abs(tempDiff)

		raw := m.adaptiveFanSpeed(roomName, tempDiff, absDiff)

		if m.cfg.EnablePredictiveControl {
			raw = m.applyPredictiveAdjustment(roomName, raw, *state.CurrentTemperature, target)
		}

		speed := raw
		if m.cfg.EnableFanSmoothing {
			speed = m.smoothFanSpeed(roomName, raw)
		}
		recommendations[roomName] = speed

		log.Debug().
			Str("room", roomName).
			Float64("temp", *state.CurrentTemperature).
			Float64("target", target).
			Float64("diff", tempDiff).
			Int("fan", speed).
			Msg("Room recommendation")
	}

	if m.cfg.EnableRoomBalancing {
		recommendations = m.applyRoomBalancing(recommendations, roomStates, effectiveTarget)
	}

	if m.cfg.AutoControlACTemp && m.cfg.MainClimateEntity != "" {
		recommendations["ac_temperature"] = int(m.calculateACTemperature(roomStates, effectiveTarget))
	}

	m.lastSummary = buildSummary(recommendations, roomStates)
	return recommendations
}

// applyRecommendations pushes cover positions (and the AC setpoint) through
// host service calls. Per-room overrides and the manual override suppress
// actuation entirely.
func (m *Manager) applyRecommendations(ctx context.Context, recommendations map[string]int) {
	if m.manualOverride {
		return
	}

	if acTemp, ok := recommendations["ac_temperature"]; ok && m.cfg.AutoControlACTemp && m.cfg.MainClimateEntity != "" {
		m.setACTemperature(ctx, float64(acTemp))
	}

	for roomName, position := range recommendations {
		if roomName == "ac_temperature" {
			continue
		}

		if enabled, ok := m.roomOverrides[roomName]; ok && !enabled {
			log.Info().Str("room", roomName).Msg("Skipping room - control disabled via override")
			continue
		}

		roomConfig := m.roomConfig(roomName)
		if roomConfig == nil {
			continue
		}

		coverState, err := m.ha.GetState(ctx, roomConfig.CoverEntity)
		if err != nil || coverState == nil {
			log.Warn().Str("room", roomName).Str("entity", roomConfig.CoverEntity).Msg("Cover entity not found")
			continue
		}
		if coverState.State == "unavailable" || coverState.State == "unknown" {
			log.Warn().
				Str("room", roomName).
				Str("entity", roomConfig.CoverEntity).
				Str("state", coverState.State).
				Msg("Cover entity unavailable")
			continue
		}

		err = m.ha.CallServiceWithRetry(ctx, "cover", "set_cover_position", map[string]any{
			"entity_id": roomConfig.CoverEntity,
			"position":  position,
		}, fmt.Sprintf("%s (%s)", roomName, roomConfig.CoverEntity))

		if err != nil {
			m.lastError = err.Error()
			m.errorCount++
			m.notifier.Persistent(ctx, "Cover Control Error",
				fmt.Sprintf("Failed to set fan speed for %s after %d attempts", roomName, homeassistant.MaxRetries))
			continue
		}

		log.Info().
			Str("room", roomName).
			Str("entity", roomConfig.CoverEntity).
			Int("position", position).
			Msg("Set cover position")
	}
}

// checkIfACNeeded implements the AC on/off hysteresis: turn on once average
// deviation reaches the on-threshold; turn off only when the average is past
// the off-threshold and the worst room is at/past target too.
func (m *Manager) checkIfACNeeded(roomStates map[string]model.RoomState, acCurrentlyOn bool) bool {
	temps, target := validTemps(roomStates, m.cfg.TargetTemperature)
	if len(temps) == 0 {
		return false
	}

	avg := mean(temps)
	diff := avg - target

	switch m.cfg.HVACMode {
	case "cool":
		if acCurrentlyOn {
			turnOff := diff <= -m.cfg.ACTurnOffThreshold && maxOf(temps) <= target
			if turnOff {
				log.Info().Float64("avg", avg).Float64("below", -diff).Msg("AC turn OFF")
			}
			return !turnOff
		}
		turnOn := diff >= m.cfg.ACTurnOnThreshold
		if turnOn {
			log.Info().Float64("avg", avg).Float64("above", diff).Msg("AC turn ON")
		}
		return turnOn

	case "heat":
		if acCurrentlyOn {
			turnOff := diff >= m.cfg.ACTurnOffThreshold && minOf(temps) >= target
			if turnOff {
				log.Info().Float64("avg", avg).Float64("above", diff).Msg("AC turn OFF")
			}
			return !turnOff
		}
		turnOn := diff <= -m.cfg.ACTurnOnThreshold
		if turnOn {
			log.Info().Float64("avg", avg).Float64("below", -diff).Msg("AC turn ON")
		}
		return turnOn

	default:
		return abs(diff) > m.cfg.TemperatureDeadband
	}
}

// controlMainAC toggles the main climate entity, subject to the compressor
// protection gate.
func (m *Manager) controlMainAC(ctx context.Context, needsAC bool, currentMode string) {
	if m.manualOverride || currentMode == "" {
		return
	}

	if needsAC && currentMode == "off" {
		if m.isCompressorProtected() {
			log.Info().Msg("Compressor protection active - deferring AC turn on")
			return
		}

		targetMode := m.cfg.HVACMode
		if targetMode == "auto" {
			targetMode = "cool"
		}

		log.Info().Str("mode", targetMode).Msg("Turning ON main AC")
		err := m.ha.CallServiceWithRetry(ctx, "climate", "set_hvac_mode", map[string]any{
			"entity_id": m.cfg.MainClimateEntity,
			"hvac_mode": targetMode,
		}, "Main AC ("+m.cfg.MainClimateEntity+")")

		if err != nil {
			m.lastError = err.Error()
			m.errorCount++
			return
		}

		m.acLastTurnedOn = m.now()
		m.saveCompressorState()
		m.notifier.Persistent(ctx, "AC Turned On",
			fmt.Sprintf("Smart Manager turned on AC in %s mode", targetMode))
		return
	}

	if !needsAC && currentMode != "off" {
		if m.isCompressorProtected() {
			log.Info().Msg("Compressor protection active - deferring AC turn off")
			return
		}

		log.Info().Msg("Turning OFF main AC")
		err := m.ha.CallServiceWithRetry(ctx, "climate", "set_hvac_mode", map[string]any{
			"entity_id": m.cfg.MainClimateEntity,
			"hvac_mode": "off",
		}, "Main AC ("+m.cfg.MainClimateEntity+")")

		if err != nil {
			m.lastError = err.Error()
			m.errorCount++
			return
		}

		m.acLastTurnedOff = m.now()
		m.saveCompressorState()
		m.notifier.Persistent(ctx, "AC Turned Off", "Smart Manager turned off AC (rooms at target)")
	}
}

func (m *Manager) setACTemperature(ctx context.Context, temperature float64) {
	climate, err := m.ha.GetState(ctx, m.cfg.MainClimateEntity)
	if err != nil || climate == nil {
		log.Warn().Str("entity", m.cfg.MainClimateEntity).Msg("Main climate entity not found")
		return
	}

	if current := homeassistant.AttributeFloat(climate, "temperature"); current != nil && abs(*current-temperature) < 0.5 {
		log.Debug().Msg("Skipping AC temperature update (difference < 0.5°C)")
		return
	}

	log.Info().Float64("temperature", temperature).Msg("Setting main AC temperature")
	err = m.ha.CallServiceWithRetry(ctx, "climate", "set_temperature", map[string]any{
		"entity_id":   m.cfg.MainClimateEntity,
		"temperature": temperature,
	}, "Main AC Temperature ("+m.cfg.MainClimateEntity+")")
	if err != nil {
		m.lastError = err.Error()
		m.errorCount++
	}
}

// calculateACTemperature picks the main AC setpoint from the average
// deviation: further away gets a more aggressive setpoint.
func (m *Manager) calculateACTemperature(roomStates map[string]model.RoomState, effectiveTarget float64) float64 {
	temps, _ := validTemps(roomStates, effectiveTarget)
	if len(temps) == 0 {
		return effectiveTarget
	}

	diff := mean(temps) - effectiveTarget

	switch m.cfg.HVACMode {
	case "cool":
		switch {
		case diff >= 2.0:
			return 19.0
		case diff >= 0.5:
			return 21.0
		default:
			return 23.0
		}
	case "heat":
		switch {
		case diff <= -2.0:
			return 25.0
		case diff <= -0.5:
			return 23.0
		default:
			return 21.0
		}
	}
	return effectiveTarget
}

// determineMainFanSpeed maps house-wide statistics to the main unit's fan
// preset.
func (m *Manager) determineMainFanSpeed(roomStates map[string]model.RoomState, effectiveTarget float64) model.FanSpeed {
	temps, target := validTemps(roomStates, effectiveTarget)
	if len(temps) == 0 {
		return model.FanMedium
	}

	avg := mean(temps)
	maxTemp := maxOf(temps)
	minTemp := minOf(temps)
	variance := maxTemp - minTemp
	avgDiff := avg - target
	avgDeviation := abs(avgDiff)
	maxDiff := maxTemp - target
	minDiff := minTemp - target

	if variance <= 1.0 && avgDeviation <= 0.5 {
		log.Info().Float64("variance", variance).Msg("Main fan -> LOW: maintaining")
		return model.FanLow
	}

	switch m.cfg.HVACMode {
	case "cool":
		if avgDiff >= m.cfg.MainFanHighThreshold || (maxDiff >= 3.0 && variance >= 2.0) {
			log.Info().Float64("avg_diff", avgDiff).Msg("Main fan -> HIGH: aggressive cooling")
			return model.FanHigh
		}
		if avgDiff <= -0.5 || (avgDiff < m.cfg.MainFanMedThreshold && maxDiff < 2.0) {
			log.Info().Msg("Main fan -> LOW: at/below target in cool mode")
			return model.FanLow
		}
		return model.FanMedium
	case "heat":
		if avgDiff <= -m.cfg.MainFanHighThreshold || (minDiff <= -3.0 && variance >= 2.0) {
			log.Info().Float64("avg_diff", avgDiff).Msg("Main fan -> HIGH: aggressive heating")
			return model.FanHigh
		}
		if avgDiff >= 0.5 || (avgDiff > -m.cfg.MainFanMedThreshold && minDiff > -2.0) {
			log.Info().Msg("Main fan -> LOW: at/above target in heat mode")
			return model.FanLow
		}
		return model.FanMedium
	default:
		if avgDeviation >= 3.0 || variance >= 3.0 {
			return model.FanHigh
		}
		return model.FanMedium
	}
}

func (m *Manager) setMainFanSpeed(ctx context.Context, speed model.FanSpeed) {
	if m.manualOverride {
		return
	}

	fanState, err := m.ha.GetState(ctx, m.cfg.MainFanEntity)
	if err != nil || fanState == nil {
		log.Warn().Str("entity", m.cfg.MainFanEntity).Msg("Main fan entity not found")
		return
	}
	if fanState.State == "unavailable" || fanState.State == "unknown" {
		log.Warn().Str("entity", m.cfg.MainFanEntity).Str("state", fanState.State).Msg("Main fan entity unavailable")
		return
	}

	var callErr error
	if strings.HasPrefix(m.cfg.MainFanEntity, "climate.") {
		callErr = m.ha.CallServiceWithRetry(ctx, "climate", "set_fan_mode", map[string]any{
			"entity_id": m.cfg.MainFanEntity,
			"fan_mode":  string(speed),
		}, "Main Fan ("+m.cfg.MainFanEntity+")")
	} else {
		callErr = m.ha.CallServiceWithRetry(ctx, "fan", "set_preset_mode", map[string]any{
			"entity_id":   m.cfg.MainFanEntity,
			"preset_mode": string(speed),
		}, "Main Fan ("+m.cfg.MainFanEntity+")")
	}

	if callErr != nil {
		m.lastError = callErr.Error()
		m.errorCount++
		m.notifier.Persistent(ctx, "Main Fan Error",
			fmt.Sprintf("Failed to set main fan speed after %d attempts", homeassistant.MaxRetries))
		return
	}

	log.Info().Str("entity", m.cfg.MainFanEntity).Str("speed", string(speed)).Msg("Set main fan speed")
}

func (m *Manager) roomsStable(roomStates map[string]model.RoomState) bool {
	if len(roomStates) == 0 {
		return false
	}
	for _, state := range roomStates {
		if state.CurrentTemperature == nil {
			return false
		}
		if abs(*state.CurrentTemperature-state.TargetTemperature) > m.cfg.TemperatureDeadband {
			return false
		}
	}
	return true
}

func (m *Manager) trackLearning(roomStates map[string]model.RoomState, recommendations map[string]int, cycleTime time.Duration) {
	if m.learning == nil || !m.learning.Enabled {
		return
	}

	for roomName, state := range roomStates {
		if state.CurrentTemperature == nil {
			continue
		}
		current := *state.CurrentTemperature

		before := current
		if prev, ok := m.lastRoomTemps[roomName]; ok {
			before = prev
		}

		fanSpeed := 50
		if v, ok := recommendations[roomName]; ok {
			fanSpeed = v
		}

		after := current
		m.learning.Tracker.TrackCycle(roomName, before, &after, fanSpeed, state.TargetTemperature, cycleTime.Seconds())
		m.lastRoomTemps[roomName] = current
	}
}

func (m *Manager) emitMetrics(roomStates map[string]model.RoomState, recommendations map[string]int, cycleTime time.Duration) {
	for roomName, state := range roomStates {
		if state.CurrentTemperature != nil {
			datadog.Gauge("room.temperature", *state.CurrentTemperature, "room:"+roomName)
		}
		if speed, ok := recommendations[roomName]; ok {
			datadog.Gauge("room.fan_speed", float64(speed), "room:"+roomName)
		}
	}
	datadog.Gauge("cycle.duration_ms", float64(cycleTime.Microseconds())/1000.0)
	datadog.Gauge("cycle.error_count", float64(m.errorCount))

	if m.recorder != nil {
		m.recorder.RecordCycle(roomStates, recommendations, m.cfg.HVACMode)
	}
}

func (m *Manager) roomConfig(roomName string) *model.RoomConfig {
	for i := range m.cfg.Rooms {
		if m.cfg.Rooms[i].RoomName == roomName {
			return &m.cfg.Rooms[i]
		}
	}
	return nil
}

func buildSummary(recommendations map[string]int, roomStates map[string]model.RoomState) string {
	lines := []string{"Optimization decisions:"}

	names := make([]string, 0, len(recommendations))
	for name := range recommendations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "ac_temperature" {
			lines = append(lines, fmt.Sprintf("AC Temperature: %d°C", recommendations[name]))
			continue
		}
		state, ok := roomStates[name]
		if !ok || state.CurrentTemperature == nil {
			continue
		}
		diff := *state.CurrentTemperature - state.TargetTemperature
		lines = append(lines, fmt.Sprintf("%s: %.1f°C (target %.1f°C, %+.1f°C) → %d%%",
			name, *state.CurrentTemperature, state.TargetTemperature, diff, recommendations[name]))
	}

	return strings.Join(lines, "\n")
}

func withoutACTemp(recommendations map[string]int) map[string]int {
	out := make(map[string]int, len(recommendations))
	for k, v := range recommendations {
		if k == "ac_temperature" {
			continue
		}
		out[k] = v
	}
	return out
}

func validTemps(roomStates map[string]model.RoomState, fallbackTarget float64) ([]float64, float64) {
	var temps []float64
	target := fallbackTarget
	for _, state := range roomStates {
		if state.CurrentTemperature != nil {
			temps = append(temps, *state.CurrentTemperature)
			target = state.TargetTemperature
		}
	}
	return temps, target
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
