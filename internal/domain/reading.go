// Package domain defines the telemetry, classification and actuation types shared by the service.
package domain

import "time"

// Physiological bounds applied to every reading, synthetic or external.
const (
	MinHeartRate   = 40
	MaxHeartRate   = 180
	MinBloodOxygen = 70
	MaxBloodOxygen = 100
	MinStressLevel = 1
	MaxStressLevel = 100
	MinActivity    = 0
	MaxActivity    = 100
)

// Reading is one timestamped sample from the watch.
type Reading struct {
	HeartRate   int       `json:"heartRate"`
	BloodOxygen int       `json:"bloodOxygen"`
	StressLevel int       `json:"stressLevel"`
	Activity    int       `json:"activity"`
	Steps       int64     `json:"steps"`
	Calories    int64     `json:"calories"`
	Timestamp   time.Time `json:"timestamp"`
}

// DefaultReading is what callers see before the first tick.
func DefaultReading(at time.Time) Reading {
	return Reading{
		HeartRate:   70,
		BloodOxygen: 98,
		StressLevel: 50,
		Activity:    0,
		Timestamp:   at,
	}
}

// Clamp forces the bounded fields into their physiological ranges. Cumulative fields
// are floored at zero; monotonicity across readings is the generator's job.
func (r Reading) Clamp() Reading {
	r.HeartRate = clampInt(r.HeartRate, MinHeartRate, MaxHeartRate)
	r.BloodOxygen = clampInt(r.BloodOxygen, MinBloodOxygen, MaxBloodOxygen)
	r.StressLevel = clampInt(r.StressLevel, MinStressLevel, MaxStressLevel)
	r.Activity = clampInt(r.Activity, MinActivity, MaxActivity)
	if r.Steps < 0 {
		r.Steps = 0
	}
	if r.Calories < 0 {
		r.Calories = 0
	}
	return r
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
