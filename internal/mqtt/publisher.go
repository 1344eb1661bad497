package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/config"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/model"
)

// Publisher mirrors cycle results onto MQTT so dashboards and automations
// outside the controller can consume them. All topics are retained; a
// subscriber connecting late still sees the last state.
type Publisher struct {
	client paho.Client
	prefix string
}

func Connect(cfg config.MQTT) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	return &Publisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// PublishResult fans one cycle result out into per-room topics plus a
// status summary topic.
func (p *Publisher) PublishResult(result *model.CycleResult) {
	if result == nil {
		return
	}

	for room, state := range result.RoomStates {
		payload := map[string]any{
			"target_temperature": state.TargetTemperature,
			"cover_position":     state.CoverPosition,
		}
		if state.CurrentTemperature != nil {
			payload["current_temperature"] = *state.CurrentTemperature
		}
		if state.CurrentHumidity != nil {
			payload["current_humidity"] = *state.CurrentHumidity
		}
		if state.Occupied != nil {
			payload["occupied"] = *state.Occupied
		}
		if speed, ok := result.Recommendations[room]; ok {
			payload["fan_speed"] = speed
		}
		p.publishJSON(p.prefix+"/room/"+room, payload)
	}

	p.publishJSON(p.prefix+"/status", map[string]any{
		"main_ac_running":    result.MainACRunning,
		"needs_ac":           result.NeedsAC,
		"main_fan_speed":     string(result.MainFanSpeed),
		"manual_override":    result.ManualOverride,
		"effective_target":   result.EffectiveTarget,
		"weather_adjustment": result.WeatherAdjustment,
		"error_count":        result.ErrorCount,
		"total_cycles":       result.TotalCycles,
	})
}

// PublishCritical mirrors critical room states.
func (p *Publisher) PublishCritical(states map[string]model.CriticalRoomState) {
	for room, state := range states {
		p.publishJSON(p.prefix+"/critical/"+room, state)
	}
}

func (p *Publisher) publishJSON(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal MQTT payload")
		return
	}

	token := p.client.Publish(topic, 0, true, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
