package domain

import "time"

// LightSettings is the state pushed to the smart lights. Hue and Saturation use the
// 16-bit hue / 8-bit saturation scale of the bridge API.
type LightSettings struct {
	Color      string `json:"color"`
	Hue        int    `json:"hue"`
	Saturation int    `json:"sat"`
	Brightness int    `json:"bri"`
}

// MusicSettings carries the genre tag and the ordered track recommendations.
type MusicSettings struct {
	Genre  string   `json:"type"`
	Tracks []string `json:"suggestedTracks"`
}

// ActuationSettings is the environment output derived from a classification state.
type ActuationSettings struct {
	Lights      LightSettings `json:"lights"`
	Music       MusicSettings `json:"music"`
	Temperature int           `json:"temperature"`
	State       MentalState   `json:"mentalState"`
	Confidence  float64       `json:"confidence"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
