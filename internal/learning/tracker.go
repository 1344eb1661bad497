package learning

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxDataPointsPerRoom   = 1000 // in-memory bound
	persistedPointsPerRoom = 200  // snapshot bound

	// Minimum samples before the statistics mean anything.
	minPointsForRates    = 10
	minPointsForEstimate = 50
)

// DataPoint is one observed optimization cycle for one room.
type DataPoint struct {
	Timestamp      float64  `json:"timestamp"` // unix seconds
	TempBefore     float64  `json:"temp_before"`
	TempAfter      *float64 `json:"temp_after"`
	FanSpeed       int      `json:"fan_speed"`
	TargetTemp     float64  `json:"target_temp"`
	CycleDuration  float64  `json:"cycle_duration"` // seconds since previous cycle
	DiffFromTarget float64  `json:"temp_diff_from_target"`
}

// Tracker keeps a bounded FIFO history of cycle observations per room and
// derives the descriptive statistics the learning profiles feed on. It is
// mutated only under the optimizer's cycle lock.
type Tracker struct {
	dataPoints map[string][]DataPoint
	now        func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		dataPoints: make(map[string][]DataPoint),
		now:        time.Now,
	}
}

// TrackCycle appends one observation, dropping the oldest entry once the
// per-room bound is reached.
func (t *Tracker) TrackCycle(roomName string, tempBefore float64, tempAfter *float64, fanSpeed int, targetTemp, cycleDuration float64) {
	point := DataPoint{
		Timestamp:      float64(t.now().UnixNano()) / 1e9,
		TempBefore:     tempBefore,
		TempAfter:      tempAfter,
		FanSpeed:       fanSpeed,
		TargetTemp:     targetTemp,
		CycleDuration:  cycleDuration,
		DiffFromTarget: tempBefore - targetTemp,
	}

	points := append(t.dataPoints[roomName], point)
	if len(points) > maxDataPointsPerRoom {
		points = points[len(points)-maxDataPointsPerRoom:]
	}
	t.dataPoints[roomName] = points

	log.Debug().
		Str("room", roomName).
		Float64("temp", tempBefore).
		Int("fan", fanSpeed).
		Float64("target", targetTemp).
		Msg("Tracked cycle")
}

// ConvergenceRate returns the mean temperature movement per minute over the
// time window, or nil with fewer than 10 complete samples.
func (t *Tracker) ConvergenceRate(roomName string, windowHours int) *float64 {
	cutoff := float64(t.now().UnixNano())/1e9 - float64(windowHours)*3600

	var rates []float64
	for _, p := range t.dataPoints[roomName] {
		if p.Timestamp <= cutoff || p.TempAfter == nil {
			continue
		}
		minutes := p.CycleDuration / 60.0
		if minutes > 0 {
			rates = append(rates, abs(*p.TempAfter-p.TempBefore)/minutes)
		}
	}

	if len(rates) < minPointsForRates {
		return nil
	}
	m := mean(rates)
	return &m
}

// OvershootFrequency counts sign crossings of the target (beyond a 0.3°C
// margin) in the window, normalized to crossings per day.
func (t *Tracker) OvershootFrequency(roomName string, windowHours int) float64 {
	cutoff := float64(t.now().UnixNano())/1e9 - float64(windowHours)*3600

	var recent []DataPoint
	for _, p := range t.dataPoints[roomName] {
		if p.Timestamp > cutoff {
			recent = append(recent, p)
		}
	}
	if len(recent) < minPointsForRates {
		return 0.0
	}

	overshoots := 0
	for i := 1; i < len(recent); i++ {
		prev := recent[i-1].DiffFromTarget
		curr := recent[i].DiffFromTarget
		if (prev > 0 && curr < -0.3) || (prev < 0 && curr > 0.3) {
			overshoots++
		}
	}

	hoursObserved := float64(len(recent)) * (recent[0].CycleDuration / 3600.0)
	if hoursObserved <= 0 {
		return 0.0
	}
	return float64(overshoots) / hoursObserved * 24.0
}

// EstimateThermalMass derives a 0-1 thermal inertia proxy from temperature
// drift over windows where the fan speed held roughly constant. Higher means
// the room changes temperature more slowly.
func (t *Tracker) EstimateThermalMass(roomName string) *float64 {
	points := t.dataPoints[roomName]
	if len(points) < minPointsForEstimate {
		return nil
	}

	var rates []float64
	for i := 10; i < len(points); i++ {
		window := points[i-10 : i]

		minFan, maxFan := window[0].FanSpeed, window[0].FanSpeed
		for _, p := range window {
			if p.FanSpeed < minFan {
				minFan = p.FanSpeed
			}
			if p.FanSpeed > maxFan {
				maxFan = p.FanSpeed
			}
		}
		if maxFan-minFan > 10 {
			continue // fan speed moved too much to attribute drift to the room
		}

		tempChange := abs(window[len(window)-1].TempBefore - window[0].TempBefore)
		var minutes float64
		for _, p := range window {
			minutes += p.CycleDuration / 60.0
		}
		if minutes > 0 {
			rates = append(rates, tempChange/minutes)
		}
	}

	if len(rates) < 5 {
		return nil
	}

	// 1.0°C/min maps to zero mass, 0°C/min to full mass.
	mass := clamp(1.0-mean(rates)/1.0, 0.0, 1.0)
	mass = round2(mass)
	return &mass
}

// EstimateCoolingEfficiency correlates applied fan speed with movement toward
// target, normalized so ~0.5°C improvement per full fan fraction is 1.0.
func (t *Tracker) EstimateCoolingEfficiency(roomName string) *float64 {
	points := t.dataPoints[roomName]
	if len(points) < minPointsForEstimate {
		return nil
	}

	var samples []float64
	for i := 1; i < len(points); i++ {
		prev, curr := points[i-1], points[i]
		if curr.TempAfter == nil {
			continue
		}

		prevDiff := abs(prev.DiffFromTarget)
		currDiff := abs(curr.DiffFromTarget)
		if currDiff >= prevDiff {
			continue // no improvement this cycle
		}

		fanFraction := float64(curr.FanSpeed) / 100.0
		if fanFraction > 0.1 {
			samples = append(samples, (prevDiff-currDiff)/fanFraction)
		}
	}

	if len(samples) < minPointsForRates {
		return nil
	}

	eff := round2(min(1.0, mean(samples)/0.5))
	return &eff
}

func (t *Tracker) DataPointCount(roomName string) int {
	return len(t.dataPoints[roomName])
}

func (t *Tracker) Rooms() []string {
	rooms := make([]string, 0, len(t.dataPoints))
	for room := range t.dataPoints {
		rooms = append(rooms, room)
	}
	return rooms
}

func (t *Tracker) ClearRoom(roomName string) {
	delete(t.dataPoints, roomName)
	log.Info().Str("room", roomName).Msg("Cleared learning data")
}

func (t *Tracker) ClearAll() {
	t.dataPoints = make(map[string][]DataPoint)
	log.Info().Msg("Cleared all learning data")
}

// Snapshot returns at most the newest persistedPointsPerRoom entries per room
// for the JSON snapshot file.
func (t *Tracker) Snapshot() map[string][]DataPoint {
	out := make(map[string][]DataPoint, len(t.dataPoints))
	for room, points := range t.dataPoints {
		if len(points) > persistedPointsPerRoom {
			points = points[len(points)-persistedPointsPerRoom:]
		}
		copied := make([]DataPoint, len(points))
		copy(copied, points)
		out[room] = copied
	}
	return out
}

// Restore replaces the in-memory history from a snapshot.
func (t *Tracker) Restore(data map[string][]DataPoint) {
	t.dataPoints = make(map[string][]DataPoint, len(data))
	for room, points := range data {
		copied := make([]DataPoint, len(points))
		copy(copied, points)
		t.dataPoints[room] = copied
	}
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
