package learning

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Default tuning constants a profile starts from before any observation.
const (
	DefaultSmoothingFactor    = 0.7
	DefaultSmoothingThreshold = 10
	DefaultThermalMass        = 0.5
	DefaultCoolingEfficiency  = 0.6
)

// Profile holds the learned per-room constants the optimizer may substitute
// for its defaults once confidence is high enough.
type Profile struct {
	RoomName    string  `json:"room_name"`
	LastUpdated string  `json:"last_updated,omitempty"`
	Confidence  float64 `json:"confidence"`

	ThermalMass       float64 `json:"thermal_mass"`
	CoolingEfficiency float64 `json:"cooling_efficiency"`

	OptimalSmoothingFactor    float64 `json:"optimal_smoothing_factor"`
	OptimalSmoothingThreshold int     `json:"optimal_smoothing_threshold"`

	AvgConvergenceTimeSeconds *int     `json:"avg_convergence_time_seconds,omitempty"`
	OvershootRatePerDay       *float64 `json:"overshoot_rate_per_day,omitempty"`
}

func NewProfile(roomName string) *Profile {
	return &Profile{
		RoomName:                  roomName,
		ThermalMass:               DefaultThermalMass,
		CoolingEfficiency:         DefaultCoolingEfficiency,
		OptimalSmoothingFactor:    DefaultSmoothingFactor,
		OptimalSmoothingThreshold: DefaultSmoothingThreshold,
	}
}

// UpdateFromTracker recomputes the profile from observed history. Returns
// false when there is not yet enough data to say anything.
func (p *Profile) UpdateFromTracker(t *Tracker) bool {
	thermalMass := t.EstimateThermalMass(p.RoomName)
	coolingEfficiency := t.EstimateCoolingEfficiency(p.RoomName)

	if thermalMass == nil || coolingEfficiency == nil {
		log.Debug().
			Str("room", p.RoomName).
			Int("points", t.DataPointCount(p.RoomName)).
			Msg("Insufficient data to update learning profile")
		return false
	}

	p.ThermalMass = *thermalMass
	p.CoolingEfficiency = *coolingEfficiency

	if rate := t.ConvergenceRate(p.RoomName, 24); rate != nil && *rate > 0 {
		// Rate is °C/min; estimate seconds to close a 0.5°C gap.
		secs := int(0.5 / *rate * 60)
		p.AvgConvergenceTimeSeconds = &secs
	}

	overshootFreq := t.OvershootFrequency(p.RoomName, 24)
	p.OvershootRatePerDay = &overshootFreq

	// Oscillating rooms get heavier smoothing, very stable rooms get less.
	if overshootFreq > 2.0 {
		p.OptimalSmoothingFactor = minf(0.85, p.OptimalSmoothingFactor+0.05)
		p.OptimalSmoothingThreshold = mini(15, p.OptimalSmoothingThreshold+2)
	} else if overshootFreq < 0.5 {
		p.OptimalSmoothingFactor = maxf(0.6, p.OptimalSmoothingFactor-0.05)
		p.OptimalSmoothingThreshold = maxi(5, p.OptimalSmoothingThreshold-2)
	}

	// Confidence is purely sample-count driven: full confidence at 200 points.
	p.Confidence = min(1.0, float64(t.DataPointCount(p.RoomName))/200.0)
	p.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	log.Info().
		Str("room", p.RoomName).
		Float64("thermal_mass", p.ThermalMass).
		Float64("efficiency", p.CoolingEfficiency).
		Float64("confidence", p.Confidence).
		Msg("Updated learning profile")

	return true
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func mini(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
