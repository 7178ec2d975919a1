package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/moodsync/internal/hub"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []hub.Event
	chans  []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, event hub.Event) hub.PublishResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.chans = append(p.chans, channel)
	return hub.PublishResult{Subscribers: 1, Delivered: 1}
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestRunnerPublishesOneReadingPerTick(t *testing.T) {
	g, fake := newTestGenerator(10)
	pub := &recordingPublisher{}
	runner := NewRunner(g, pub, time.Second, fake, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	fake.WaitForTimers(1)
	require.Eventually(t, runner.Running, time.Second, time.Millisecond)
	for i := 1; i <= 3; i++ {
		fake.Advance(time.Second)
		require.Eventually(t, func() bool { return pub.count() == i }, time.Second, time.Millisecond)
	}

	cancel()
	require.NoError(t, <-done)
	require.False(t, runner.Running())
	require.Equal(t, 0, fake.PendingCount(), "ticker must be stopped on shutdown")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, g.History(), 3)
	for i, event := range pub.events {
		require.Equal(t, hub.ChannelTelemetry, pub.chans[i])
		require.Equal(t, hub.EventReading, event.Type)
	}
	require.Equal(t, g.Current(), pub.events[2].Data)
}

func TestRunnerStepPublishesThroughRealHub(t *testing.T) {
	g, _ := newTestGenerator(10)
	h := hub.New(hub.WithSnapshot(hub.ChannelTelemetry, g.Snapshot))
	runner := NewRunner(g, h, time.Second, nil, nil)

	res := runner.Step(context.Background())
	require.Equal(t, hub.PublishResult{}, res)
	require.Len(t, g.History(), 1)
}
