// Package telemetry simulates the watch feed: one reading per tick, kept in a bounded history.
package telemetry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
	"example.com/moodsync/internal/hub"
	"example.com/moodsync/internal/observability"
)

// Generation ranges, inclusive.
const (
	genHeartRateMin   = 60
	genHeartRateMax   = 100
	genBloodOxygenMin = 95
	genBloodOxygenMax = 100
	genActivityMin    = 0
	genActivityMax    = 100
	genStepsStep      = 100
	genCaloriesStep   = 10

	// DefaultCapacity is the history size used when none is configured.
	DefaultCapacity = 100
)

// Option configures a Generator.
type Option func(*Generator)

// WithCapacity sets the history size. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.capacity = n
		}
	}
}

// WithRand sets the random source, for reproducible sequences.
func WithRand(rng *rand.Rand) Option {
	return func(g *Generator) {
		if rng != nil {
			g.rng = rng
		}
	}
}

// WithClock sets the time source used for reading timestamps.
func WithClock(c clock.Clock) Option {
	return func(g *Generator) {
		if c != nil {
			g.clock = c
		}
	}
}

// Generator owns the latest reading and the rolling history. Tick and Ingest are the
// only writers; any number of goroutines may read concurrently.
type Generator struct {
	mu       sync.RWMutex
	clock    clock.Clock
	rng      *rand.Rand
	capacity int

	// ring buffer: history[start] is the oldest of size entries.
	history []domain.Reading
	start   int
	size    int

	current    domain.Reading
	hasCurrent bool
	startedAt  time.Time
}

// NewGenerator constructs a Generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		clock:    clock.Real(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.history = make([]domain.Reading, g.capacity)
	g.startedAt = g.clock.Now()
	return g
}

// Capacity returns the history size.
func (g *Generator) Capacity() int { return g.capacity }

// Tick produces one synthetic reading and appends it to the history.
func (g *Generator) Tick() domain.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.latestLocked()
	hr := g.between(genHeartRateMin, genHeartRateMax)
	activity := g.between(genActivityMin, genActivityMax)
	reading := domain.Reading{
		HeartRate:   hr,
		BloodOxygen: g.between(genBloodOxygenMin, genBloodOxygenMax),
		StressLevel: StressLevel(hr, activity),
		Activity:    activity,
		Steps:       prev.Steps + int64(g.between(0, genStepsStep)),
		Calories:    prev.Calories + int64(g.between(0, genCaloriesStep)),
		Timestamp:   g.nextTimestampLocked(prev, time.Time{}),
	}
	g.appendLocked(reading)
	return reading
}

// Ingest accepts a reading from an external sensor feed. Out-of-range values are
// clamped, cumulative fields never go backwards and timestamps stay strictly
// increasing. A missing stress level is derived from heart rate and activity.
func (g *Generator) Ingest(in domain.Reading) domain.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.latestLocked()
	reading := in
	if reading.StressLevel <= 0 {
		reading.StressLevel = StressLevel(reading.HeartRate, reading.Activity)
	}
	reading = reading.Clamp()
	if g.hasCurrent {
		reading.Steps = max(reading.Steps, prev.Steps)
		reading.Calories = max(reading.Calories, prev.Calories)
	}
	reading.Timestamp = g.nextTimestampLocked(prev, in.Timestamp)
	g.appendLocked(reading)
	return reading
}

// Current returns the latest reading, or the default reading before the first tick.
func (g *Generator) Current() domain.Reading {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.latestLocked()
}

// History returns a copy of the history, oldest first.
func (g *Generator) History() []domain.Reading {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]domain.Reading, g.size)
	for i := 0; i < g.size; i++ {
		out[i] = g.history[(g.start+i)%g.capacity]
	}
	return out
}

// Snapshot is the telemetry channel's catch-up event.
func (g *Generator) Snapshot() (hub.Event, bool) {
	return hub.Event{Type: hub.EventReading, Data: g.Current()}, true
}

func (g *Generator) latestLocked() domain.Reading {
	if !g.hasCurrent {
		return domain.DefaultReading(g.startedAt)
	}
	return g.current
}

func (g *Generator) appendLocked(r domain.Reading) {
	if g.size < g.capacity {
		g.history[(g.start+g.size)%g.capacity] = r
		g.size++
	} else {
		g.history[g.start] = r
		g.start = (g.start + 1) % g.capacity
	}
	g.current = r
	g.hasCurrent = true
	observability.RecordReading(r.Timestamp, r.HeartRate)
}

// nextTimestampLocked prefers the supplied time, falls back to the clock, and bumps
// by a millisecond when the result would not be after the previous reading.
func (g *Generator) nextTimestampLocked(prev domain.Reading, supplied time.Time) time.Time {
	ts := supplied
	if ts.IsZero() {
		ts = g.clock.Now()
	}
	if g.hasCurrent && !ts.After(prev.Timestamp) {
		ts = prev.Timestamp.Add(time.Millisecond)
	}
	return ts
}

func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// StressLevel derives a 1-100 stress score from heart rate and activity: a raised
// heart rate that activity does not explain reads as stress.
func StressLevel(heartRate, activity int) int {
	score := float64(heartRate-genHeartRateMin)*1.75 + float64(domain.MaxActivity-activity)*0.3
	return min(max(int(math.Round(score)), domain.MinStressLevel), domain.MaxStressLevel)
}
