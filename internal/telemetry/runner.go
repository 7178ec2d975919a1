package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/hub"
)

// Publisher is the slice of the hub the runner needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, event hub.Event) hub.PublishResult
}

// Runner drives Tick on a fixed interval and publishes every reading. Each tick's
// publish completes before the next tick is taken, so ticks never overlap.
type Runner struct {
	generator *Generator
	publisher Publisher
	interval  time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	running   atomic.Bool
}

// NewRunner constructs a Runner.
func NewRunner(generator *Generator, publisher Publisher, interval time.Duration, c clock.Clock, logger *zap.Logger) *Runner {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		generator: generator,
		publisher: publisher,
		interval:  interval,
		clock:     c,
		logger:    logger,
	}
}

// Running reports whether Run is active.
func (r *Runner) Running() bool { return r.running.Load() }

// Run ticks until ctx is cancelled, then stops the ticker and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}
	defer r.running.Store(false)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("telemetry generator started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("telemetry generator stopped")
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step produces and publishes a single reading.
func (r *Runner) Step(ctx context.Context) hub.PublishResult {
	reading := r.generator.Tick()
	res := r.publisher.Publish(ctx, hub.ChannelTelemetry, hub.Event{Type: hub.EventReading, Data: reading})
	r.logger.Debug("reading published",
		zap.Int("heart_rate", reading.HeartRate),
		zap.Int("subscribers", res.Subscribers),
		zap.Int("evicted", res.Evicted),
	)
	return res
}
