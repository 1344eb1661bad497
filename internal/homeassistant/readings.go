package homeassistant

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Readings coming back from the host are strings and may be garbage. Everything
// in this file returns nil rather than erroring: an unreadable sensor drops the
// room out of the cycle, it never aborts it.

func stateUnusable(state string) bool {
	switch strings.ToLower(state) {
	case "", "unknown", "unavailable", "none":
		return true
	}
	return false
}

// ValidateTemperature sanity-checks a raw temperature value in °C.
func ValidateTemperature(value string, roomName string) *float64 {
	if stateUnusable(value) {
		return nil
	}

	temp, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		log.Warn().Str("room", roomName).Str("value", value).Msg("Could not parse temperature")
		return nil
	}

	if temp < -50.0 || temp > 70.0 {
		log.Warn().
			Str("room", roomName).
			Float64("temp", temp).
			Msg("Temperature reading outside realistic range, ignoring")
		return nil
	}

	return &temp
}

// Temperature extracts a validated room temperature from a sensor entity.
// Fahrenheit readings are converted first; the realistic-range check always
// runs against the Celsius value, otherwise every normal room temperature
// above 70°F would be thrown away.
func Temperature(e *Entity, roomName string) *float64 {
	if e == nil || stateUnusable(e.State) {
		return nil
	}

	temp, err := strconv.ParseFloat(strings.TrimSpace(e.State), 64)
	if err != nil {
		log.Warn().Str("room", roomName).Str("value", e.State).Msg("Could not parse temperature")
		return nil
	}

	if isFahrenheit(e) {
		temp = (temp - 32.0) * 5.0 / 9.0
		log.Debug().Str("room", roomName).Float64("celsius", temp).Msg("Converted temperature from F to C")
	}

	if temp < -50.0 || temp > 70.0 {
		log.Warn().
			Str("room", roomName).
			Float64("temp", temp).
			Msg("Temperature reading outside realistic range, ignoring")
		return nil
	}

	return &temp
}

// Humidity extracts a relative-humidity percentage, clamped to 0-100.
func Humidity(e *Entity, roomName string) *float64 {
	if e == nil || stateUnusable(e.State) {
		return nil
	}

	h, err := strconv.ParseFloat(strings.TrimSpace(e.State), 64)
	if err != nil {
		log.Warn().Str("room", roomName).Str("value", e.State).Msg("Could not parse humidity")
		return nil
	}
	if h < 0 || h > 100 {
		log.Warn().Str("room", roomName).Float64("humidity", h).Msg("Humidity reading outside 0-100%, ignoring")
		return nil
	}
	return &h
}

// CoverPosition reads current_position from a cover entity, defaulting to
// fully open when absent or unreadable.
func CoverPosition(e *Entity, roomName string) int {
	const fullyOpen = 100

	if e == nil {
		return fullyOpen
	}

	raw, ok := e.Attributes["current_position"]
	if !ok || raw == nil {
		return fullyOpen
	}

	var pos float64
	switch v := raw.(type) {
	case float64:
		pos = v
	case string:
		if stateUnusable(v) {
			return fullyOpen
		}
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Warn().Str("room", roomName).Str("value", v).Msg("Could not parse cover position, using default")
			return fullyOpen
		}
		pos = p
	default:
		return fullyOpen
	}

	rounded := int(math.Round(pos))
	if rounded < 0 || rounded > 100 {
		log.Warn().
			Str("room", roomName).
			Int("position", rounded).
			Msg("Cover position outside 0-100%, clamping")
		if rounded < 0 {
			return 0
		}
		return 100
	}
	return rounded
}

// Occupied interprets a binary occupancy sensor. Returns nil for unusable
// states so vacancy setback never triggers off a dead sensor.
func Occupied(e *Entity) *bool {
	if e == nil || stateUnusable(e.State) {
		return nil
	}
	on := strings.EqualFold(e.State, "on") || strings.EqualFold(e.State, "home") || strings.EqualFold(e.State, "true")
	return &on
}

// AttributeFloat pulls a numeric attribute (e.g. a weather entity's
// "temperature") out of an entity.
func AttributeFloat(e *Entity, name string) *float64 {
	if e == nil {
		return nil
	}
	raw, ok := e.Attributes[name]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		return &v
	case string:
		if stateUnusable(v) {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// AttributeString pulls a string attribute, empty when absent.
func AttributeString(e *Entity, name string) string {
	if e == nil {
		return ""
	}
	if v, ok := e.Attributes[name].(string); ok {
		return v
	}
	return ""
}

func isFahrenheit(e *Entity) bool {
	switch AttributeString(e, "unit_of_measurement") {
	case "°F", "F", "fahrenheit":
		return true
	}
	return false
}
