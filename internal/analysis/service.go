// Package analysis runs the classify → map → publish pipeline.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"example.com/moodsync/internal/classifier"
	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/persistence"
)

// ReadingSource supplies the reading to classify.
type ReadingSource interface {
	Current() domain.Reading
}

// Applier turns a classification into published settings.
type Applier interface {
	Apply(ctx context.Context, classification domain.Classification) domain.ActuationSettings
}

// Result is the outcome of one analysis. Reading is always set; Classification and
// Settings only on success.
type Result struct {
	Reading        domain.Reading           `json:"reading"`
	Classification domain.Classification    `json:"classification"`
	Settings       domain.ActuationSettings `json:"environmentSettings"`
}

// ManualInput is a caller supplied classification.
type ManualInput struct {
	State            string
	Confidence       float64
	Reasoning        string
	SuggestedActions []string
}

// Service coordinates the generator, classifier, controller and journal. Concurrent
// calls are not serialised; the controller orders the resulting publishes.
type Service struct {
	readings   ReadingSource
	classifier classifier.Classifier
	applier    Applier
	journal    persistence.Journal
	clock      clock.Clock
	logger     *zap.Logger
}

// NewService builds a Service. journal may be nil.
func NewService(readings ReadingSource, c classifier.Classifier, applier Applier, journal persistence.Journal, clk clock.Clock, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		readings:   readings,
		classifier: c,
		applier:    applier,
		journal:    journal,
		clock:      clk,
		logger:     logger,
	}
}

// Analyze classifies the current reading. On classifier failure it returns the reading
// with an error matching domain.ErrClassifierUnavailable and publishes nothing.
func (s *Service) Analyze(ctx context.Context, annotation string) (Result, error) {
	return s.classify(ctx, s.readings.Current(), annotation)
}

// AnalyzeReading classifies a caller supplied reading instead of the generator's. The
// reading is clamped to the physiological bounds and stamped with the current time
// when it carries none. Failure handling matches Analyze.
func (s *Service) AnalyzeReading(ctx context.Context, reading domain.Reading, annotation string) (Result, error) {
	reading = reading.Clamp()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.clock.Now()
	}
	return s.classify(ctx, reading, annotation)
}

func (s *Service) classify(ctx context.Context, reading domain.Reading, annotation string) (Result, error) {
	res := Result{Reading: reading}

	classification, err := s.classifier.Classify(ctx, reading, annotation)
	if err != nil {
		if !errors.Is(err, domain.ErrClassifierUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, err)
		}
		return res, err
	}

	res.Classification = classification
	res.Settings = s.applier.Apply(ctx, classification)
	s.record(ctx, persistence.Entry{
		ID:         classification.ID,
		State:      res.Settings.State,
		Confidence: classification.Confidence,
		Source:     classification.Source,
		Annotation: annotation,
		Reasoning:  classification.Reasoning,
		Reading:    &reading,
		Settings:   res.Settings,
	})
	return res, nil
}

// ApplyState maps a caller supplied state directly, bypassing the classifier. Unknown
// states are applied as neutral.
func (s *Service) ApplyState(ctx context.Context, in ManualInput) (domain.ActuationSettings, error) {
	if strings.TrimSpace(in.State) == "" {
		return domain.ActuationSettings{}, domain.ErrMissingState
	}
	state, known := domain.ParseMentalState(in.State)
	if !known {
		s.logger.Info("unknown mental state applied as neutral", zap.String("state", in.State))
	}

	classification := domain.Classification{
		State:            state,
		Confidence:       in.Confidence,
		Reasoning:        in.Reasoning,
		SuggestedActions: in.SuggestedActions,
		Source:           persistence.SourceManual,
		ClassifiedAt:     s.clock.Now(),
	}.Normalize()

	settings := s.applier.Apply(ctx, classification)
	s.record(ctx, persistence.Entry{
		State:      settings.State,
		Confidence: classification.Confidence,
		Source:     persistence.SourceManual,
		Reasoning:  classification.Reasoning,
		Settings:   settings,
	})
	return settings, nil
}

func (s *Service) record(ctx context.Context, entry persistence.Entry) {
	if s.journal == nil {
		return
	}
	entry.RecordedAt = s.clock.Now()
	if err := s.journal.Record(ctx, entry); err != nil {
		s.logger.Warn("journal write failed", zap.String("state", string(entry.State)), zap.Error(err))
	}
}
