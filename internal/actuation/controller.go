package actuation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/hub"
	"example.com/moodsync/internal/observability"
)

// Publisher is the hub surface the controller needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, event hub.Event) hub.PublishResult
}

// Dispatcher pushes settings to downstream devices. Failures are the dispatcher's
// concern; it never reports them back.
type Dispatcher interface {
	Dispatch(ctx context.Context, settings domain.ActuationSettings)
}

// Controller owns the latest actuation settings and broadcasts every change on the
// actuation channel.
type Controller struct {
	mapper     *Mapper
	publisher  Publisher
	dispatcher Dispatcher
	logger     *zap.Logger

	// publishMu orders Apply calls end to end; mu only guards latest and is never held
	// across a publish, so snapshot reads cannot wait on a subscriber send.
	publishMu sync.Mutex
	mu        sync.RWMutex
	latest    domain.ActuationSettings
}

// NewController builds a Controller seeded with DefaultSettings. dispatcher may be nil.
func NewController(mapper *Mapper, publisher Publisher, dispatcher Dispatcher, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	observability.RecordState(string(domain.StateNeutral))
	return &Controller{
		mapper:     mapper,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     logger,
		latest:     DefaultSettings(),
	}
}

// Latest returns the settings currently in effect.
func (c *Controller) Latest() domain.ActuationSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneSettings(c.latest)
}

// Snapshot is the hub snapshot source for the actuation channel.
func (c *Controller) Snapshot() (hub.Event, bool) {
	return hub.Event{Type: hub.EventSettings, Data: c.Latest()}, true
}

// Apply maps a classification, stores the result and publishes it. Concurrent calls
// publish in the order they stored, so subscribers end on the same settings as Latest.
func (c *Controller) Apply(ctx context.Context, classification domain.Classification) domain.ActuationSettings {
	settings := c.mapper.Map(ctx, classification)

	c.publishMu.Lock()
	c.mu.Lock()
	c.latest = settings
	c.mu.Unlock()
	result := c.publisher.Publish(ctx, hub.ChannelActuation, hub.Event{Type: hub.EventSettings, Data: cloneSettings(settings)})
	c.publishMu.Unlock()

	observability.RecordState(string(settings.State))
	c.logger.Info("environment updated",
		zap.String("state", string(settings.State)),
		zap.Float64("confidence", settings.Confidence),
		zap.Int("temperature", settings.Temperature),
		zap.Int("subscribers", result.Subscribers),
		zap.Int("delivered", result.Delivered),
	)

	if c.dispatcher != nil {
		c.dispatcher.Dispatch(ctx, settings)
	}
	return cloneSettings(settings)
}

func cloneSettings(s domain.ActuationSettings) domain.ActuationSettings {
	tracks := make([]string, len(s.Music.Tracks))
	copy(tracks, s.Music.Tracks)
	s.Music.Tracks = tracks
	return s
}
