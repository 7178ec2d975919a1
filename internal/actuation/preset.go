// Package actuation turns a classification into environment settings and keeps the
// latest settings for late subscribers.
package actuation

import "example.com/moodsync/internal/domain"

// PresetRow is one row of the state → environment table.
type PresetRow struct {
	Lights      domain.LightSettings
	Temperature int
	Genre       string
}

var presets = map[domain.MentalState]PresetRow{
	domain.StateStressed: {
		Lights:      domain.LightSettings{Color: "#4A6FE3", Hue: 46920, Saturation: 254, Brightness: 127},
		Temperature: 72,
		Genre:       "calming",
	},
	domain.StateNeutral: {
		Lights:      domain.LightSettings{Color: "#FFD8A8", Hue: 8418, Saturation: 140, Brightness: 178},
		Temperature: 73,
		Genre:       "ambient",
	},
	domain.StateRelaxed: {
		Lights:      domain.LightSettings{Color: "#FFB070", Hue: 6000, Saturation: 200, Brightness: 229},
		Temperature: 74,
		Genre:       "upbeat",
	},
}

// Preset returns the table row for state. Unknown states get the neutral row.
func Preset(state domain.MentalState) PresetRow {
	if row, ok := presets[state]; ok {
		return row
	}
	return presets[domain.StateNeutral]
}

// DefaultSettings is the actuation snapshot served before any classification.
func DefaultSettings() domain.ActuationSettings {
	row := Preset(domain.StateNeutral)
	return domain.ActuationSettings{
		Lights:      row.Lights,
		Music:       domain.MusicSettings{Genre: row.Genre, Tracks: []string{}},
		Temperature: row.Temperature,
		State:       domain.StateNeutral,
	}
}
