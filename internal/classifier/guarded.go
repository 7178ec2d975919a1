package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/observability"
)

// DefaultTimeout bounds a single classification.
const DefaultTimeout = 15 * time.Second

// Guarded wraps a Classifier with a timeout, metrics and error translation. Every
// failure is reported as domain.ErrClassifierUnavailable; no result is ever
// substituted.
type Guarded struct {
	inner   Classifier
	timeout time.Duration
	clock   clock.Clock
	logger  *zap.Logger
}

// NewGuarded wraps inner.
func NewGuarded(inner Classifier, timeout time.Duration, clk clock.Clock, logger *zap.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{inner: inner, timeout: timeout, clock: clk, logger: logger}
}

// Name implements Classifier.
func (g *Guarded) Name() string { return g.inner.Name() }

// Classify implements Classifier.
func (g *Guarded) Classify(ctx context.Context, reading domain.Reading, annotation string) (domain.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		c   domain.Classification
		err error
	}
	done := make(chan outcome, 1)
	started := time.Now()
	go func() {
		c, err := g.inner.Classify(ctx, reading, annotation)
		done <- outcome{c: c, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res = outcome{err: ctx.Err()}
	}
	elapsed := time.Since(started)

	if res.err != nil {
		label := "error"
		if errors.Is(res.err, context.DeadlineExceeded) {
			label = "timeout"
		}
		observability.RecordClassification(g.inner.Name(), label, elapsed)
		g.logger.Warn("classification failed",
			zap.String("classifier", g.inner.Name()),
			zap.String("outcome", label),
			zap.Duration("elapsed", elapsed),
			zap.Error(res.err),
		)
		return domain.Classification{}, fmt.Errorf("%w: %v", domain.ErrClassifierUnavailable, res.err)
	}

	observability.RecordClassification(g.inner.Name(), "success", elapsed)
	c := res.c.Normalize()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = g.clock.Now()
	}
	c.Source = g.inner.Name()
	return c, nil
}
