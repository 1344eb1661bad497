package model

import "time"

type HVACMode string

const (
	ModeOff     HVACMode = "off"
	ModeCool    HVACMode = "cool"
	ModeHeat    HVACMode = "heat"
	ModeDry     HVACMode = "dry"
	ModeFanOnly HVACMode = "fan_only"
	ModeAuto    HVACMode = "auto"
)

type FanSpeed string

const (
	FanLow    FanSpeed = "low"
	FanMedium FanSpeed = "medium"
	FanHigh   FanSpeed = "high"
)

// RoomConfig is the static identity of a managed room. It is immutable after
// startup; runtime state lives in RoomState.
type RoomConfig struct {
	RoomName          string   `json:"room_name" mapstructure:"room_name"`
	TemperatureSensor string   `json:"temperature_sensor" mapstructure:"temperature_sensor"`
	CoverEntity       string   `json:"cover_entity" mapstructure:"cover_entity"`
	HumiditySensor    string   `json:"humidity_sensor,omitempty" mapstructure:"humidity_sensor"`
	OccupancySensor   string   `json:"occupancy_sensor,omitempty" mapstructure:"occupancy_sensor"`
	TargetTemperature *float64 `json:"target_temperature,omitempty" mapstructure:"target_temperature"`
}

// RoomState is the per-cycle snapshot for one room. Nil pointers mean the
// reading was unavailable this cycle.
type RoomState struct {
	CurrentTemperature *float64 `json:"current_temperature"`
	CurrentHumidity    *float64 `json:"current_humidity,omitempty"`
	TargetTemperature  float64  `json:"target_temperature"`
	CoverPosition      int      `json:"cover_position"`
	Occupied           *bool    `json:"occupied,omitempty"`
}

type Schedule struct {
	Name       string   `json:"schedule_name" mapstructure:"schedule_name"`
	Days       []string `json:"schedule_days" mapstructure:"schedule_days"`
	StartTime  string   `json:"schedule_start_time" mapstructure:"schedule_start_time"`
	EndTime    string   `json:"schedule_end_time" mapstructure:"schedule_end_time"`
	TargetTemp float64  `json:"schedule_target_temp" mapstructure:"schedule_target_temp"`
	Enabled    bool     `json:"schedule_enabled" mapstructure:"schedule_enabled"`
}

// CycleResult is the output of one optimization cycle. The API, the MQTT
// publisher and the diagnostics surface all read from the last result.
type CycleResult struct {
	RoomStates       map[string]RoomState `json:"room_states"`
	Recommendations  map[string]int       `json:"recommendations"`
	ACTemperature    *float64             `json:"ac_temperature,omitempty"`
	MainFanSpeed     FanSpeed             `json:"main_fan_speed,omitempty"`
	MainACRunning    bool                 `json:"main_ac_running"`
	NeedsAC          bool                 `json:"needs_ac"`
	ManualOverride   bool                 `json:"manual_override,omitempty"`
	HVACModeDecision HVACMode             `json:"hvac_mode_decision,omitempty"`
	Summary          string               `json:"summary,omitempty"`

	ActiveSchedule     *Schedule `json:"active_schedule,omitempty"`
	EffectiveTarget    float64   `json:"effective_target_temperature"`
	BaseTarget         float64   `json:"base_target_temperature"`
	WeatherAdjustment  float64   `json:"weather_adjustment"`
	OutdoorTemperature *float64  `json:"outdoor_temperature,omitempty"`

	LastError        string  `json:"last_error,omitempty"`
	ErrorCount       int     `json:"error_count"`
	CycleTimeMS      float64 `json:"optimization_cycle_time_ms"`
	TotalCycles      int     `json:"total_optimizations_run"`
	ErrorRatePerHour float64 `json:"error_rate_per_hour"`
}

type CriticalStatus string

const (
	CriticalNormal     CriticalStatus = "normal"
	CriticalWarning    CriticalStatus = "warning"
	CriticalCritical   CriticalStatus = "critical"
	CriticalRecovering CriticalStatus = "recovering"
)

// CriticalRoomConfig holds the hard ceiling for a critical room. TempSafe sits
// below TempMax-WarningOffset so the recovering state has somewhere to land;
// config validation enforces the ordering.
type CriticalRoomConfig struct {
	TempMax        float64  `json:"temp_max" mapstructure:"temp_max"`
	TempSafe       float64  `json:"temp_safe" mapstructure:"temp_safe"`
	WarningOffset  float64  `json:"warning_offset" mapstructure:"warning_offset"`
	NotifyServices []string `json:"notify_services" mapstructure:"notify_services"`
}

type CriticalRoomState struct {
	Status           CriticalStatus `json:"status"`
	Temperature      *float64       `json:"temperature,omitempty"`
	LastNotification time.Time      `json:"last_notification,omitempty"`
	LastCheck        time.Time      `json:"last_check,omitempty"`
}

// CompressorState is persisted across restarts so minimum on/off dwell times
// survive a controller restart mid-cycle.
type CompressorState struct {
	LastTurnedOn  time.Time `json:"ac_last_turned_on"`
	LastTurnedOff time.Time `json:"ac_last_turned_off"`
}
