package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"example.com/moodsync/internal/clock"
)

// Analyzer is the part of Service the scheduler drives.
type Analyzer interface {
	Analyze(ctx context.Context, annotation string) (Result, error)
}

// Scheduler classifies the current reading on its own timer, independent of the
// telemetry tick. Failures are logged and the next interval proceeds normally.
type Scheduler struct {
	analyzer Analyzer
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(analyzer Analyzer, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{analyzer: analyzer, interval: interval, clock: clk, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("periodic classification started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := s.analyzer.Analyze(ctx, "")
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("periodic classification failed", zap.Error(err))
				continue
			}
			s.logger.Debug("periodic classification applied",
				zap.String("state", string(res.Settings.State)),
				zap.Float64("confidence", res.Classification.Confidence),
			)
		}
	}
}
