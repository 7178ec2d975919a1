package actuation

import (
	"context"

	"go.uber.org/zap"

	"example.com/moodsync/internal/catalog"
	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
)

// DefaultTrackLimit caps the track list attached to settings.
const DefaultTrackLimit = 5

// Mapper derives ActuationSettings from a classification. It is stateless apart from
// its collaborators.
type Mapper struct {
	catalog    catalog.Catalog
	trackLimit int
	clock      clock.Clock
	logger     *zap.Logger
}

// NewMapper builds a Mapper. A nil catalog yields empty track lists.
func NewMapper(cat catalog.Catalog, trackLimit int, clk clock.Clock, logger *zap.Logger) *Mapper {
	if trackLimit <= 0 {
		trackLimit = DefaultTrackLimit
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{catalog: cat, trackLimit: trackLimit, clock: clk, logger: logger}
}

// Map looks up the preset for the classification's state and asks the catalog once
// for tracks. A catalog failure leaves the track list empty.
func (m *Mapper) Map(ctx context.Context, c domain.Classification) domain.ActuationSettings {
	c = c.Normalize()
	row := Preset(c.State)

	tracks := []string{}
	if m.catalog != nil {
		recommended, err := m.catalog.Recommend(ctx, c.State, m.trackLimit)
		if err != nil {
			m.logger.Warn("track recommendation failed", zap.String("state", string(c.State)), zap.Error(err))
		} else if recommended != nil {
			tracks = recommended
		}
	}

	return domain.ActuationSettings{
		Lights:      row.Lights,
		Music:       domain.MusicSettings{Genre: row.Genre, Tracks: tracks},
		Temperature: row.Temperature,
		State:       c.State,
		Confidence:  c.Confidence,
		UpdatedAt:   m.clock.Now(),
	}
}
