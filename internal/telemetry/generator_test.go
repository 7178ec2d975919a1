package telemetry

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/domain"
)

var epoch = time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)

func newTestGenerator(capacity int) (*Generator, *clock.FakeClock) {
	fake := clock.Fake(epoch)
	g := NewGenerator(
		WithCapacity(capacity),
		WithClock(fake),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	return g, fake
}

func TestCurrentBeforeFirstTickIsDefault(t *testing.T) {
	g, _ := newTestGenerator(10)
	require.Equal(t, domain.DefaultReading(epoch), g.Current())
	require.Empty(t, g.History())

	event, ok := g.Snapshot()
	require.True(t, ok)
	require.Equal(t, "reading", event.Type)
	require.Equal(t, domain.DefaultReading(epoch), event.Data)
}

func TestTickStaysWithinBoundsAndIsMonotonic(t *testing.T) {
	g, fake := newTestGenerator(20)

	prev := g.Current()
	for i := 0; i < 500; i++ {
		if i%3 == 0 {
			fake.Advance(time.Second)
		}
		r := g.Tick()
		require.GreaterOrEqual(t, r.HeartRate, 60)
		require.LessOrEqual(t, r.HeartRate, 100)
		require.GreaterOrEqual(t, r.BloodOxygen, 95)
		require.LessOrEqual(t, r.BloodOxygen, 100)
		require.GreaterOrEqual(t, r.StressLevel, domain.MinStressLevel)
		require.LessOrEqual(t, r.StressLevel, domain.MaxStressLevel)
		require.GreaterOrEqual(t, r.Steps, prev.Steps)
		require.GreaterOrEqual(t, r.Calories, prev.Calories)
		if i > 0 {
			require.True(t, r.Timestamp.After(prev.Timestamp), "timestamps must strictly increase")
		}
		prev = r
	}
}

func TestHistoryKeepsMostRecentInOrder(t *testing.T) {
	const capacity = 5
	g, fake := newTestGenerator(capacity)

	var all []domain.Reading
	for i := 0; i < capacity+7; i++ {
		fake.Advance(time.Second)
		all = append(all, g.Tick())
		require.LessOrEqual(t, len(g.History()), capacity)
	}

	history := g.History()
	require.Equal(t, all[len(all)-capacity:], history)
	require.Equal(t, all[len(all)-1], g.Current())
}

func TestHistoryIsACopy(t *testing.T) {
	g, _ := newTestGenerator(3)
	g.Tick()
	h := g.History()
	h[0].HeartRate = -1
	require.NotEqual(t, -1, g.History()[0].HeartRate)
}

func TestIngestClampsAndKeepsInvariants(t *testing.T) {
	g, _ := newTestGenerator(10)
	first := g.Ingest(domain.Reading{HeartRate: 82, BloodOxygen: 97, StressLevel: 64, Steps: 2040, Calories: 860, Timestamp: epoch})
	require.Equal(t, 64, first.StressLevel)

	second := g.Ingest(domain.Reading{HeartRate: 260, BloodOxygen: 20, Activity: 50, Steps: 10, Calories: 5, Timestamp: epoch.Add(-time.Minute)})
	require.Equal(t, domain.MaxHeartRate, second.HeartRate)
	require.Equal(t, domain.MinBloodOxygen, second.BloodOxygen)
	require.Equal(t, int64(2040), second.Steps)
	require.Equal(t, int64(860), second.Calories)
	require.True(t, second.Timestamp.After(first.Timestamp))
	require.Equal(t, domain.MaxStressLevel, second.StressLevel)
}

func TestStressLevelFormula(t *testing.T) {
	require.Equal(t, 100, StressLevel(100, 0))
	require.Equal(t, 1, StressLevel(60, 100))
	require.Equal(t, 53, StressLevel(80, 40))
	require.Equal(t, StressLevel(75, 10), StressLevel(75, 10))
}

func TestConcurrentReadersSeeWholeReadings(t *testing.T) {
	g, _ := newTestGenerator(50)
	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				r := g.Current()
				if want := expectedStress(r); want != r.StressLevel {
					t.Errorf("torn reading: stress %d, want %d", r.StressLevel, want)
					return
				}
				_ = g.History()
			}
		}()
	}
	for i := 0; i < 200; i++ {
		g.Tick()
	}
	close(done)
	wg.Wait()
}

// expectedStress recomputes the stress of a generated reading; the default reading
// carries a fixed stress of 50.
func expectedStress(r domain.Reading) int {
	if r.Steps == 0 && r.Calories == 0 && r.HeartRate == 70 && r.StressLevel == 50 {
		return 50
	}
	return StressLevel(r.HeartRate, r.Activity)
}
