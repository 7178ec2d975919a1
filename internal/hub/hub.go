package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/moodsync/internal/observability"
)

// ErrHubClosed is returned by Subscribe after Shutdown.
var ErrHubClosed = errors.New("hub closed")

const defaultSendTimeout = 2 * time.Second

// Conn is a live duplex connection as seen by the hub. Send must honour the context
// deadline; Close may be called concurrently with Send and more than once.
type Conn interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSendTimeout bounds each per-subscriber send.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithSnapshot registers the catch-up event source for a channel.
func WithSnapshot(channel string, fn SnapshotFunc) Option {
	return func(h *Hub) { h.snapshots[channel] = fn }
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id      string
	channel string
	conn    Conn

	// sem serialises writes to conn; a channel so acquisition can be abandoned on timeout.
	sem  chan struct{}
	done chan struct{}
	once sync.Once
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Channel returns the channel the subscription is attached to.
func (s *Subscription) Channel() string { return s.channel }

// Done is closed once the subscription has been removed, by Unsubscribe, by a failed
// send or by Shutdown.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) release() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

type channel struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool
}

// Hub owns the channel to subscriber-set mapping.
//
// Lock order: Hub.mu before channel.mu. Channels are never removed from the map,
// so a *channel obtained under Hub.mu stays valid after it is released.
type Hub struct {
	mu        sync.RWMutex
	channels  map[string]*channel
	snapshots map[string]SnapshotFunc
	closed    bool

	inflight    sync.WaitGroup
	sendTimeout time.Duration
	logger      *zap.Logger
}

// New constructs a Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		channels:    make(map[string]*channel),
		snapshots:   make(map[string]SnapshotFunc),
		sendTimeout: defaultSendTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterSnapshot sets or replaces the snapshot source of a channel.
func (h *Hub) RegisterSnapshot(name string, fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots[name] = fn
}

// HasChannel reports whether name has a snapshot source or has been subscribed to.
func (h *Hub) HasChannel(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, known := h.snapshots[name]
	_, created := h.channels[name]
	return known || created
}

// Subscribe attaches conn to the named channel and sends the channel snapshot. The
// snapshot is guaranteed to reach conn before any event published after this call
// registers the subscriber. The snapshot source runs without hub locks held, so it
// may take its own locks freely. If the snapshot send fails, the subscriber is
// removed and the error returned.
func (h *Hub) Subscribe(name string, conn Conn) (*Subscription, error) {
	if conn == nil {
		return nil, errors.New("hub: nil connection")
	}

	ch, snapshot, err := h.channelForSubscribe(name)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		channel: name,
		conn:    conn,
		sem:     make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	// Held until the snapshot is written so concurrent publishes queue behind it.
	sub.sem <- struct{}{}

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil, ErrHubClosed
	}
	ch.subs[sub.id] = sub
	count := len(ch.subs)
	ch.mu.Unlock()

	// Read after registering: a publish that missed this subscriber stored its state
	// before the registration, so the snapshot already reflects it. A publish that saw
	// the subscriber queues behind sub.sem and arrives after the snapshot.
	var (
		event       Event
		hasSnapshot bool
	)
	if snapshot != nil {
		event, hasSnapshot = snapshot()
	}

	observability.SetSubscribers(name, count)
	h.logger.Info("subscriber attached",
		zap.String("channel", name),
		zap.String("subscription_id", sub.id),
		zap.Int("subscribers", count),
	)

	if !hasSnapshot {
		<-sub.sem
		return sub, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
	defer cancel()
	if err := h.send(ctx, sub, event); err != nil {
		h.remove(sub, "snapshot send failed")
		return nil, fmt.Errorf("send snapshot: %w", err)
	}
	return sub, nil
}

func (h *Hub) channelForSubscribe(name string) (*channel, SnapshotFunc, error) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return nil, nil, ErrHubClosed
	}
	ch, ok := h.channels[name]
	snapshot := h.snapshots[name]
	h.mu.RUnlock()
	if ok {
		return ch, snapshot, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, nil, ErrHubClosed
	}
	if ch, ok = h.channels[name]; !ok {
		ch = &channel{subs: make(map[string]*Subscription)}
		h.channels[name] = ch
	}
	return ch, h.snapshots[name], nil
}

// Unsubscribe detaches the subscription and closes its connection. It is idempotent
// and accepts nil.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.remove(sub, "unsubscribed")
}

// Publish delivers event to every subscriber attached to the channel at the time of
// the call. Sends run concurrently, each bounded by the send timeout; failed
// subscribers are removed. Publishing to an unknown or empty channel is a no-op.
func (h *Hub) Publish(ctx context.Context, name string, event Event) PublishResult {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return PublishResult{}
	}
	ch, ok := h.channels[name]
	if ok {
		h.inflight.Add(1)
	}
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug("publish to unknown channel", zap.String("channel", name), zap.String("type", event.Type))
		observability.RecordPublish(name, event.Type, 0, 0)
		return PublishResult{}
	}
	defer h.inflight.Done()

	ch.mu.Lock()
	subs := make([]*Subscription, 0, len(ch.subs))
	for _, sub := range ch.subs {
		subs = append(subs, sub)
	}
	ch.mu.Unlock()

	result := PublishResult{Subscribers: len(subs)}
	if len(subs) == 0 {
		h.logger.Debug("publish to channel without subscribers", zap.String("channel", name), zap.String("type", event.Type))
		observability.RecordPublish(name, event.Type, 0, 0)
		return result
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.deliver(ctx, sub, event)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			result.Delivered++
			continue
		}
		result.Evicted++
		h.logger.Warn("dropping subscriber after failed send",
			zap.String("channel", name),
			zap.String("subscription_id", subs[i].id),
			zap.Error(err),
		)
		h.remove(subs[i], "send failed")
	}

	observability.RecordPublish(name, event.Type, result.Delivered, result.Evicted)
	return result
}

// deliver acquires the subscriber's write slot and sends. A subscriber removed while
// waiting counts as delivered-to-nobody, not as a failure.
func (h *Hub) deliver(ctx context.Context, sub *Subscription, event Event) error {
	select {
	case <-sub.done:
		return nil
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	select {
	case sub.sem <- struct{}{}:
	case <-sub.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for previous send: %w", ctx.Err())
	}
	return h.send(ctx, sub, event)
}

// send writes one event while holding sub.sem and releases it when conn.Send returns.
// A Send that ignores its context is abandoned at the deadline; closing the
// connection on eviction unblocks it.
func (h *Hub) send(ctx context.Context, sub *Subscription, event Event) error {
	result := make(chan error, 1)
	go func() {
		defer func() { <-sub.sem }()
		result <- sub.conn.Send(ctx, event)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send timed out: %w", ctx.Err())
	}
}

func (h *Hub) remove(sub *Subscription, reason string) {
	h.mu.RLock()
	ch, ok := h.channels[sub.channel]
	h.mu.RUnlock()

	removed := false
	count := 0
	if ok {
		ch.mu.Lock()
		if _, present := ch.subs[sub.id]; present {
			delete(ch.subs, sub.id)
			removed = true
		}
		count = len(ch.subs)
		ch.mu.Unlock()
	}
	sub.release()

	if removed {
		observability.SetSubscribers(sub.channel, count)
		h.logger.Info("subscriber detached",
			zap.String("channel", sub.channel),
			zap.String("subscription_id", sub.id),
			zap.String("reason", reason),
			zap.Int("subscribers", count),
		)
	}
}

// Stats returns the subscriber count per channel, including empty channels.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	channels := make(map[string]*channel, len(h.channels))
	for name, ch := range h.channels {
		channels[name] = ch
	}
	for name := range h.snapshots {
		if _, ok := channels[name]; !ok {
			channels[name] = nil
		}
	}
	h.mu.RUnlock()

	stats := make(map[string]int, len(channels))
	for name, ch := range channels {
		if ch == nil {
			stats[name] = 0
			continue
		}
		ch.mu.Lock()
		stats[name] = len(ch.subs)
		ch.mu.Unlock()
	}
	return stats
}

// Channels returns the known channel names in sorted order.
func (h *Hub) Channels() []string {
	stats := h.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown stops accepting subscribers, waits for in-flight publishes until ctx is
// done, then closes every remaining connection. It returns ctx.Err() when the grace
// period ran out.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	channels := make(map[string]*channel, len(h.channels))
	for name, ch := range h.channels {
		channels[name] = ch
	}
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		h.logger.Warn("hub grace period expired, force-closing connections")
	}

	closed := 0
	for name, ch := range channels {
		ch.mu.Lock()
		ch.closed = true
		subs := ch.subs
		ch.subs = make(map[string]*Subscription)
		ch.mu.Unlock()

		for _, sub := range subs {
			sub.release()
			closed++
		}
		observability.SetSubscribers(name, 0)
	}
	h.logger.Info("hub shut down", zap.Int("connections_closed", closed))
	return err
}
