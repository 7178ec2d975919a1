// Package events defines the payloads exchanged with Kafka: readings from the sensor
// feed and actuation changes mirrored to downstream consumers.
package events

import (
	"time"

	"example.com/moodsync/internal/domain"
)

// Event types carried in the event_type header.
const (
	TypeReadingRecorded = "reading.recorded"
	TypeSettingsChanged = "settings.changed"

	HeaderEventType   = "event_type"
	HeaderContentType = "content_type"
	ContentTypeJSON   = "application/json"
)

// ReadingRecorded is one sample from an external sensor.
type ReadingRecorded struct {
	DeviceID    string    `json:"device_id,omitempty"`
	HeartRate   int       `json:"heart_rate"`
	BloodOxygen int       `json:"blood_oxygen"`
	StressLevel int       `json:"stress_level,omitempty"`
	Activity    int       `json:"activity"`
	Steps       int64     `json:"steps"`
	Calories    int64     `json:"calories"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Reading converts the payload to the domain type. Bounds are applied by the caller.
func (e ReadingRecorded) Reading() domain.Reading {
	return domain.Reading{
		HeartRate:   e.HeartRate,
		BloodOxygen: e.BloodOxygen,
		StressLevel: e.StressLevel,
		Activity:    e.Activity,
		Steps:       e.Steps,
		Calories:    e.Calories,
		Timestamp:   e.RecordedAt,
	}
}

// SettingsChanged is emitted whenever the environment settings change.
type SettingsChanged struct {
	MentalState string    `json:"mental_state"`
	Confidence  float64   `json:"confidence"`
	LightColor  string    `json:"light_color"`
	LightHue    int       `json:"light_hue"`
	LightSat    int       `json:"light_sat"`
	LightBri    int       `json:"light_bri"`
	Temperature int       `json:"temperature"`
	MusicGenre  string    `json:"music_genre"`
	Tracks      []string  `json:"tracks"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewSettingsChanged flattens settings into the mirror payload.
func NewSettingsChanged(s domain.ActuationSettings) SettingsChanged {
	return SettingsChanged{
		MentalState: string(s.State),
		Confidence:  s.Confidence,
		LightColor:  s.Lights.Color,
		LightHue:    s.Lights.Hue,
		LightSat:    s.Lights.Saturation,
		LightBri:    s.Lights.Brightness,
		Temperature: s.Temperature,
		MusicGenre:  s.Music.Genre,
		Tracks:      s.Music.Tracks,
		OccurredAt:  s.UpdatedAt,
	}
}
