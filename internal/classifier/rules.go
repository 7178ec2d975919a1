package classifier

import (
	"context"
	"fmt"
	"strings"

	"example.com/moodsync/internal/domain"
)

var (
	stressWords  = []string{"stress", "anxious", "anxiety", "overwhelm", "tense", "panic", "deadline"}
	relaxedWords = []string{"calm", "relax", "rested", "peaceful", "happy", "good"}
)

var suggestions = map[domain.MentalState][]string{
	domain.StateStressed: {"Take five slow, deep breaths", "Step away from the screen for a short walk"},
	domain.StateNeutral:  {"Stay hydrated", "Stretch for a couple of minutes"},
	domain.StateRelaxed:  {"Keep the momentum with light activity", "Use the energy for a focused task"},
}

// RuleClassifier is a local, deterministic classifier for deployments without a model
// API key. It weighs the derived stress level and heart rate, nudged by keywords in
// the annotation.
type RuleClassifier struct{}

// Name implements Classifier.
func (RuleClassifier) Name() string { return "rules" }

// Classify implements Classifier.
func (RuleClassifier) Classify(ctx context.Context, reading domain.Reading, annotation string) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}

	score := float64(reading.StressLevel)
	if reading.HeartRate >= 95 {
		score += 10
	}
	lower := strings.ToLower(annotation)
	for _, w := range stressWords {
		if strings.Contains(lower, w) {
			score += 15
			break
		}
	}
	for _, w := range relaxedWords {
		if strings.Contains(lower, w) {
			score -= 15
			break
		}
	}

	var (
		state      domain.MentalState
		confidence float64
	)
	switch {
	case score >= 65:
		state = domain.StateStressed
		confidence = 0.5 + (score-65)/70
	case score <= 35:
		state = domain.StateRelaxed
		confidence = 0.5 + (35-score)/70
	default:
		state = domain.StateNeutral
		confidence = 0.6
	}

	return domain.Classification{
		State:      state,
		Confidence: confidence,
		Reasoning: fmt.Sprintf("heart rate %d bpm with stress level %d/100 scores %.0f on the local scale",
			reading.HeartRate, reading.StressLevel, score),
		SuggestedActions: append([]string(nil), suggestions[state]...),
	}.Normalize(), nil
}
