package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

type HomeAssistant struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type MQTT struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type Datadog struct {
	Enabled   bool     `mapstructure:"enabled"`
	AgentAddr string   `mapstructure:"agent_addr"`
	Namespace string   `mapstructure:"namespace"`
	Tags      []string `mapstructure:"tags"`
}

type Telemetry struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type Learning struct {
	Enabled             bool    `mapstructure:"enabled"`
	Mode                string  `mapstructure:"mode"` // passive or active
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	MaxAdjustment       float64 `mapstructure:"max_adjustment"`
}

type Config struct {
	EntryID    string `mapstructure:"entry_id"`
	StorageDir string `mapstructure:"storage_dir"`
	LogLevel   zerolog.Level
	LogFile    string `mapstructure:"log_file"`
	APIPort    int    `mapstructure:"api_port"`

	HomeAssistant HomeAssistant `mapstructure:"home_assistant"`
	MQTT          MQTT          `mapstructure:"mqtt"`
	Datadog       Datadog       `mapstructure:"datadog"`
	Telemetry     Telemetry     `mapstructure:"telemetry"`
	Learning      Learning      `mapstructure:"learning"`

	Rooms         []model.RoomConfig                  `mapstructure:"rooms"`
	CriticalRooms map[string]model.CriticalRoomConfig `mapstructure:"critical_rooms"`
	Schedules     []model.Schedule                    `mapstructure:"schedules"`
	RoomOverrides map[string]bool                     `mapstructure:"room_overrides"`

	TargetTemperature   float64 `mapstructure:"target_temperature"`
	TemperatureDeadband float64 `mapstructure:"temperature_deadband"`
	HVACMode            string  `mapstructure:"hvac_mode"`
	MainClimateEntity   string  `mapstructure:"main_climate_entity"`
	MainFanEntity       string  `mapstructure:"main_fan_entity"`
	WeatherEntity       string  `mapstructure:"weather_entity"`
	OutdoorTempSensor   string  `mapstructure:"outdoor_temp_sensor"`

	PollIntervalSeconds     int     `mapstructure:"poll_interval_seconds"`
	OptimizationIntervalSec int     `mapstructure:"optimization_interval_seconds"`
	StartupDelaySeconds     int     `mapstructure:"startup_delay_seconds"`
	CriticalPollSeconds     int     `mapstructure:"critical_poll_seconds"`
	LearningUpdateMinutes   int     `mapstructure:"learning_update_minutes"`

	AutoControlMainAC    bool    `mapstructure:"auto_control_main_ac"`
	AutoControlACTemp    bool    `mapstructure:"auto_control_ac_temperature"`
	EnableNotifications  bool    `mapstructure:"enable_notifications"`
	ACTurnOnThreshold    float64 `mapstructure:"ac_turn_on_threshold"`
	ACTurnOffThreshold   float64 `mapstructure:"ac_turn_off_threshold"`
	MainFanHighThreshold float64 `mapstructure:"main_fan_high_threshold"`
	MainFanMedThreshold  float64 `mapstructure:"main_fan_medium_threshold"`

	EnableWeatherAdjustment bool    `mapstructure:"enable_weather_adjustment"`
	WeatherInfluenceFactor  float64 `mapstructure:"weather_influence_factor"`
	EnableScheduling        bool    `mapstructure:"enable_scheduling"`

	OvershootTier1 float64 `mapstructure:"overshoot_tier1_threshold"`
	OvershootTier2 float64 `mapstructure:"overshoot_tier2_threshold"`
	OvershootTier3 float64 `mapstructure:"overshoot_tier3_threshold"`

	EnableFanSmoothing bool    `mapstructure:"enable_fan_smoothing"`
	SmoothingFactor    float64 `mapstructure:"smoothing_factor"`
	SmoothingThreshold int     `mapstructure:"smoothing_threshold"`

	EnableRoomBalancing     bool    `mapstructure:"enable_room_balancing"`
	TargetRoomVariance      float64 `mapstructure:"target_room_variance"`
	BalancingAggressiveness float64 `mapstructure:"balancing_aggressiveness"`
	MinAirflowPercent       int     `mapstructure:"min_airflow_percent"`

	EnableModeDecision    bool    `mapstructure:"enable_mode_decision"`
	HumidityThreshold     float64 `mapstructure:"humidity_threshold"`
	ModeHysteresisMinutes float64 `mapstructure:"mode_hysteresis_minutes"`
	ModeHysteresisMargin  float64 `mapstructure:"mode_hysteresis_margin"`
	ModeMinCycleCount     int     `mapstructure:"mode_min_cycle_count"`

	EnableCompressorProtection bool    `mapstructure:"enable_compressor_protection"`
	CompressorMinOnSeconds     float64 `mapstructure:"compressor_min_on_time"`
	CompressorMinOffSeconds    float64 `mapstructure:"compressor_min_off_time"`

	EnablePredictiveControl    bool    `mapstructure:"enable_predictive_control"`
	PredictiveLookaheadMinutes float64 `mapstructure:"predictive_lookahead_minutes"`
	PredictiveBoostFactor      float64 `mapstructure:"predictive_boost_factor"`

	EnableOccupancyControl bool    `mapstructure:"enable_occupancy_control"`
	VacantRoomSetback      float64 `mapstructure:"vacant_room_setback"`
}

// Load reads flags and the JSON config file. Structural problems panic so
// the controller never runs with a half-valid config; numeric tuning values
// out of range are clamped with a warning instead.
func Load() *Config {
	var configFile string
	var logLevel string

	pflag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	pflag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pflag.Parse()

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.validate()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("entry_id", "default")
	v.SetDefault("storage_dir", "data")
	v.SetDefault("api_port", 8099)

	v.SetDefault("home_assistant.base_url", "http://homeassistant.local:8123")
	v.SetDefault("home_assistant.timeout_seconds", 10)

	v.SetDefault("mqtt.topic_prefix", "smart_aircon_manager")
	v.SetDefault("mqtt.client_id", "smart-aircon-manager")
	v.SetDefault("datadog.namespace", "aircon_manager.")

	v.SetDefault("learning.mode", "passive")
	v.SetDefault("learning.confidence_threshold", 0.7)
	v.SetDefault("learning.max_adjustment", 0.10)

	v.SetDefault("target_temperature", 22.0)
	v.SetDefault("temperature_deadband", 0.5)
	v.SetDefault("hvac_mode", "cool")
	v.SetDefault("poll_interval_seconds", 10)
	v.SetDefault("optimization_interval_seconds", 30)
	v.SetDefault("startup_delay_seconds", 120)
	v.SetDefault("critical_poll_seconds", 30)
	v.SetDefault("learning_update_minutes", 60)

	v.SetDefault("enable_notifications", true)
	v.SetDefault("ac_turn_on_threshold", 1.0)
	v.SetDefault("ac_turn_off_threshold", 2.0)
	v.SetDefault("main_fan_high_threshold", 2.5)
	v.SetDefault("main_fan_medium_threshold", 1.0)
	v.SetDefault("weather_influence_factor", 0.5)

	v.SetDefault("overshoot_tier1_threshold", 1.0)
	v.SetDefault("overshoot_tier2_threshold", 2.0)
	v.SetDefault("overshoot_tier3_threshold", 3.0)

	v.SetDefault("enable_fan_smoothing", true)
	v.SetDefault("smoothing_factor", 0.7)
	v.SetDefault("smoothing_threshold", 10)

	v.SetDefault("enable_room_balancing", true)
	v.SetDefault("target_room_variance", 1.5)
	v.SetDefault("balancing_aggressiveness", 0.2)
	v.SetDefault("min_airflow_percent", 15)

	v.SetDefault("humidity_threshold", 65.0)
	v.SetDefault("mode_hysteresis_minutes", 10.0)
	v.SetDefault("mode_hysteresis_margin", 0.5)
	v.SetDefault("mode_min_cycle_count", 3)

	v.SetDefault("compressor_min_on_time", 180.0)
	v.SetDefault("compressor_min_off_time", 180.0)

	v.SetDefault("predictive_lookahead_minutes", 5.0)
	v.SetDefault("predictive_boost_factor", 0.3)

	v.SetDefault("vacant_room_setback", 2.0)
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	if len(cfg.Rooms) == 0 {
		panic("No rooms configured")
	}

	seen := map[string]bool{}
	for _, r := range cfg.Rooms {
		if r.RoomName == "" || r.TemperatureSensor == "" || r.CoverEntity == "" {
			panic(fmt.Sprintf("Room %q missing room_name, temperature_sensor or cover_entity", r.RoomName))
		}
		if seen[r.RoomName] {
			panic("Duplicate room name: " + r.RoomName)
		}
		seen[r.RoomName] = true
	}

	for name, cr := range cfg.CriticalRooms {
		if !seen[name] {
			panic("Critical room not in rooms list: " + name)
		}
		if cr.TempSafe >= cr.TempMax-cr.WarningOffset {
			panic(fmt.Sprintf("Critical room %s: temp_safe %.1f must be below temp_max-warning_offset %.1f",
				name, cr.TempSafe, cr.TempMax-cr.WarningOffset))
		}
	}

	switch cfg.HVACMode {
	case "cool", "heat", "auto":
	default:
		log.Warn().Str("hvac_mode", cfg.HVACMode).Msg("Invalid hvac_mode, falling back to cool")
		cfg.HVACMode = "cool"
	}

	cfg.TargetTemperature = clampWarn("target_temperature", cfg.TargetTemperature, 10.0, 35.0)
	cfg.TemperatureDeadband = clampWarn("temperature_deadband", cfg.TemperatureDeadband, 0.1, 5.0)
	cfg.ACTurnOnThreshold = clampWarn("ac_turn_on_threshold", cfg.ACTurnOnThreshold, 0.1, 10.0)
	cfg.ACTurnOffThreshold = clampWarn("ac_turn_off_threshold", cfg.ACTurnOffThreshold, 0.1, 10.0)
	cfg.MainFanHighThreshold = clampWarn("main_fan_high_threshold", cfg.MainFanHighThreshold, 0.1, 10.0)
	cfg.MainFanMedThreshold = clampWarn("main_fan_medium_threshold", cfg.MainFanMedThreshold, 0.1, 10.0)
	cfg.WeatherInfluenceFactor = clampWarn("weather_influence_factor", cfg.WeatherInfluenceFactor, 0.0, 1.0)
	cfg.OvershootTier1 = clampWarn("overshoot_tier1_threshold", cfg.OvershootTier1, 0.1, 10.0)
	cfg.OvershootTier2 = clampWarn("overshoot_tier2_threshold", cfg.OvershootTier2, 0.1, 10.0)
	cfg.OvershootTier3 = clampWarn("overshoot_tier3_threshold", cfg.OvershootTier3, 0.1, 10.0)
	cfg.SmoothingFactor = clampWarn("smoothing_factor", cfg.SmoothingFactor, 0.0, 1.0)
	cfg.BalancingAggressiveness = clampWarn("balancing_aggressiveness", cfg.BalancingAggressiveness, 0.0, 0.5)
	cfg.VacantRoomSetback = clampWarn("vacant_room_setback", cfg.VacantRoomSetback, 0.0, 10.0)

	if cfg.Learning.Mode != "passive" && cfg.Learning.Mode != "active" {
		log.Warn().Str("mode", cfg.Learning.Mode).Msg("Invalid learning mode, falling back to passive")
		cfg.Learning.Mode = "passive"
	}
}

func clampWarn(name string, val, min, max float64) float64 {
	if val < min || val > max {
		log.Warn().
			Str("field", name).
			Float64("value", val).
			Float64("min", min).
			Float64("max", max).
			Msg("Config value outside valid range, clamping")
		if val < min {
			return min
		}
		return max
	}
	return val
}
