package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/moodsync/internal/domain"
)

type fakeConn struct {
	mu       sync.Mutex
	events   []Event
	attempts int
	closed   bool
	sendErr  error
	// hang makes Send block until its context is done.
	hang bool
}

func (c *fakeConn) Send(ctx context.Context, event Event) error {
	c.mu.Lock()
	c.attempts++
	hang, closed, sendErr := c.hang, c.closed, c.sendErr
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if closed {
		return errors.New("use of closed connection")
	}
	if sendErr != nil {
		return sendErr
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) sendAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	reading := domain.DefaultReading(time.Unix(1700000000, 0))
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithSnapshot(ChannelTelemetry, func() (Event, bool) {
			return Event{Type: EventReading, Data: reading}, true
		}),
	}
	return New(append(base, opts...)...)
}

func TestSubscribeToUnpublishedChannelYieldsOneSnapshot(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}

	sub, err := h.Subscribe(ChannelTelemetry, conn)
	require.NoError(t, err)
	require.NotEmpty(t, sub.ID())
	require.Equal(t, ChannelTelemetry, sub.Channel())

	events := conn.received()
	require.Len(t, events, 1)
	require.Equal(t, EventReading, events[0].Type)
	require.Equal(t, 1, h.Stats()[ChannelTelemetry])
}

func TestSubscribeWithoutSnapshotSourceSendsNothing(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}

	_, err := h.Subscribe("custom", conn)
	require.NoError(t, err)
	require.Empty(t, conn.received())
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	h := newTestHub(t)

	res := h.Publish(context.Background(), "nobody-here", Event{Type: EventReading})
	require.Equal(t, PublishResult{}, res)

	sub, err := h.Subscribe(ChannelActuation, &fakeConn{})
	require.NoError(t, err)
	h.Unsubscribe(sub)

	res = h.Publish(context.Background(), ChannelActuation, Event{Type: EventSettings})
	require.Equal(t, PublishResult{}, res)
	require.Equal(t, 0, h.Stats()[ChannelActuation])
}

func TestSnapshotPrecedesPublishedEvents(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	_, err := h.Subscribe(ChannelTelemetry, conn)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.Publish(context.Background(), ChannelTelemetry, Event{Type: EventReading, Data: i})
	}

	events := conn.received()
	require.Len(t, events, 4)
	require.IsType(t, domain.Reading{}, events[0].Data)
	for i := 1; i < 4; i++ {
		require.Equal(t, i-1, events[i].Data, "single publisher order must be preserved")
	}
}

func TestClosedSubscriberIsRemovedOnNextPublish(t *testing.T) {
	h := newTestHub(t)
	healthy := &fakeConn{}
	broken := &fakeConn{}

	_, err := h.Subscribe(ChannelTelemetry, healthy)
	require.NoError(t, err)
	brokenSub, err := h.Subscribe(ChannelTelemetry, broken)
	require.NoError(t, err)
	require.NoError(t, broken.Close())

	res := h.Publish(context.Background(), ChannelTelemetry, Event{Type: EventReading, Data: "tick"})
	require.Equal(t, PublishResult{Subscribers: 2, Delivered: 1, Evicted: 1}, res)
	require.Equal(t, 1, h.Stats()[ChannelTelemetry])
	require.Len(t, healthy.received(), 2)

	select {
	case <-brokenSub.Done():
	default:
		t.Fatal("evicted subscription should be done")
	}
}

func TestSlowSubscriberDoesNotStallOthers(t *testing.T) {
	h := newTestHub(t, WithSendTimeout(50*time.Millisecond))
	fast := &fakeConn{}
	slow := &fakeConn{}

	_, err := h.Subscribe(ChannelTelemetry, fast)
	require.NoError(t, err)
	_, err = h.Subscribe(ChannelTelemetry, slow)
	require.NoError(t, err)
	slow.mu.Lock()
	slow.hang = true
	slow.mu.Unlock()

	start := time.Now()
	res := h.Publish(context.Background(), ChannelTelemetry, Event{Type: EventReading})
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, 1, res.Evicted)
	require.Len(t, fast.received(), 2)
	require.True(t, slow.isClosed())
}

func TestFailedSnapshotRejectsSubscriber(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{sendErr: errors.New("broken pipe")}

	sub, err := h.Subscribe(ChannelTelemetry, conn)
	require.Error(t, err)
	require.Nil(t, sub)
	require.Equal(t, 0, h.Stats()[ChannelTelemetry])
	require.True(t, conn.isClosed())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	sub, err := h.Subscribe(ChannelTelemetry, conn)
	require.NoError(t, err)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	require.Equal(t, 0, h.Stats()[ChannelTelemetry])
	require.True(t, conn.isClosed())
}

func TestChannelsAreIndependent(t *testing.T) {
	h := newTestHub(t)
	tel := &fakeConn{}
	act := &fakeConn{}
	_, err := h.Subscribe(ChannelTelemetry, tel)
	require.NoError(t, err)
	_, err = h.Subscribe(ChannelActuation, act)
	require.NoError(t, err)

	h.Publish(context.Background(), ChannelActuation, Event{Type: EventSettings})

	require.Len(t, tel.received(), 1)
	require.Len(t, act.received(), 1)
	require.Equal(t, []string{ChannelActuation, ChannelTelemetry}, h.Channels())
}

func TestConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		name := fmt.Sprintf("ch-%d", c)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sub, err := h.Subscribe(name, &fakeConn{})
				if err != nil {
					t.Error(err)
					return
				}
				if i%2 == 0 {
					h.Unsubscribe(sub)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Publish(ctx, name, Event{Type: "tick", Data: i})
			}
		}()
	}
	wg.Wait()

	for c := 0; c < 4; c++ {
		require.Equal(t, 25, h.Stats()[fmt.Sprintf("ch-%d", c)])
	}
}

func TestShutdownClosesConnectionsAndRejectsSubscribers(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	sub, err := h.Subscribe(ChannelTelemetry, conn)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	require.NoError(t, h.Shutdown(ctx))

	require.True(t, conn.isClosed())
	<-sub.Done()

	_, err = h.Subscribe(ChannelTelemetry, &fakeConn{})
	require.ErrorIs(t, err, ErrHubClosed)
	require.Equal(t, PublishResult{}, h.Publish(ctx, ChannelTelemetry, Event{Type: EventReading}))
}

func TestShutdownForceClosesAfterGracePeriod(t *testing.T) {
	h := newTestHub(t, WithSendTimeout(time.Minute))
	slow := &fakeConn{}
	_, err := h.Subscribe(ChannelTelemetry, slow)
	require.NoError(t, err)
	slow.mu.Lock()
	slow.hang = true
	slow.mu.Unlock()

	publishCtx, stopPublish := context.WithCancel(context.Background())
	published := make(chan struct{})
	go func() {
		h.Publish(publishCtx, ChannelTelemetry, Event{Type: EventReading})
		close(published)
	}()
	require.Eventually(t, func() bool { return slow.sendAttempts() == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = h.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, slow.isClosed())

	stopPublish()
	<-published
}

func TestReadingEventWireFormat(t *testing.T) {
	h := newTestHub(t)
	conn := &fakeConn{}
	_, err := h.Subscribe(ChannelTelemetry, conn)
	require.NoError(t, err)

	ts := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	reading := domain.Reading{HeartRate: 82, BloodOxygen: 97, StressLevel: 64, Steps: 2040, Calories: 860, Timestamp: ts}
	h.Publish(context.Background(), ChannelTelemetry, Event{Type: EventReading, Data: reading})

	events := conn.received()
	require.Len(t, events, 2)
	require.Equal(t, reading, events[1].Data)

	raw, err := json.Marshal(events[1])
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"reading","data":{"heartRate":82,"bloodOxygen":97,"stressLevel":64,"activity":0,"steps":2040,"calories":860,"timestamp":"2026-10-17T09:30:00Z"}}`, string(raw))
}
