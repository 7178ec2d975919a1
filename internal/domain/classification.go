package domain

import (
	"strings"
	"time"
)

// MentalState is the three-valued verdict produced by a classifier.
type MentalState string

const (
	StateStressed MentalState = "stressed"
	StateNeutral  MentalState = "neutral"
	StateRelaxed  MentalState = "relaxed"
)

// ParseMentalState normalises raw classifier output. Anything unrecognised becomes
// StateNeutral; known reports whether the input was one of the three states.
func ParseMentalState(raw string) (state MentalState, known bool) {
	switch MentalState(strings.ToLower(strings.TrimSpace(raw))) {
	case StateStressed:
		return StateStressed, true
	case StateNeutral:
		return StateNeutral, true
	case StateRelaxed:
		return StateRelaxed, true
	default:
		return StateNeutral, false
	}
}

// Classification is the most recent verdict for a reading.
type Classification struct {
	ID               string      `json:"id"`
	State            MentalState `json:"mentalState"`
	Confidence       float64     `json:"confidence"`
	Reasoning        string      `json:"reasoning"`
	SuggestedActions []string    `json:"suggestedActions"`
	Source           string      `json:"source,omitempty"`
	ClassifiedAt     time.Time   `json:"classifiedAt"`
}

// Normalize clamps confidence into [0,1] and maps unknown states to neutral.
func (c Classification) Normalize() Classification {
	c.State, _ = ParseMentalState(string(c.State))
	if c.Confidence < 0 {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	if c.SuggestedActions == nil {
		c.SuggestedActions = []string{}
	}
	return c
}
